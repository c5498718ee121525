// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package ingest

import (
	"context"
	"time"

	"github.com/tomtom215/telemetrus/internal/models"
	"github.com/tomtom215/telemetrus/internal/tsdb"
)

// QueryRange returns a sensor's readings inside [from, to], oldest first.
func (s *Service) QueryRange(ctx context.Context, sensorID string, from, to time.Time) ([]models.Measurement, error) {
	return s.ts.QueryRange(ctx, sensorID, from, to)
}

// QueryByLocation returns all readings for a city inside [from, to],
// oldest first.
func (s *Service) QueryByLocation(ctx context.Context, country, city string, from, to time.Time) ([]models.Measurement, error) {
	return s.ts.QueryByLocation(ctx, country, city, from, to)
}

// SensorStats aggregates a sensor's readings over [from, to].
func (s *Service) SensorStats(ctx context.Context, sensorID string, from, to time.Time) (*tsdb.Stats, error) {
	return s.ts.AggregateStats(ctx, sensorID, from, to)
}

// LocationStats aggregates every sensor's readings in a city over [from, to].
func (s *Service) LocationStats(ctx context.Context, country, city string, from, to time.Time) (*tsdb.LocationStats, error) {
	return s.ts.AggregateByLocation(ctx, country, city, from, to)
}
