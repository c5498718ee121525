// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package ingest is the core service facade. It validates incoming
// measurements, enriches them from the sensor registry, writes them to
// the time-series store, and runs the alert rule engine over each
// accepted reading. Administrative operations on sensors, rules, alerts,
// users and groups are exposed from the same service so every transport
// (HTTP, NATS intake) shares one code path.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/tomtom215/telemetrus/internal/config"
	"github.com/tomtom215/telemetrus/internal/docstore"
	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/metrics"
	"github.com/tomtom215/telemetrus/internal/models"
	"github.com/tomtom215/telemetrus/internal/rules"
	"github.com/tomtom215/telemetrus/internal/tsdb"
)

// timeseries is the slice of the time-series store the service needs.
type timeseries interface {
	Append(ctx context.Context, m *models.Measurement) error
	QueryRange(ctx context.Context, sensorID string, from, to time.Time) ([]models.Measurement, error)
	QueryByLocation(ctx context.Context, country, city string, from, to time.Time) ([]models.Measurement, error)
	AggregateStats(ctx context.Context, sensorID string, from, to time.Time) (*tsdb.Stats, error)
	AggregateByLocation(ctx context.Context, country, city string, from, to time.Time) (*tsdb.LocationStats, error)
}

// alertDispatcher raises alerts and drives their lifecycle.
type alertDispatcher interface {
	Raise(ctx context.Context, alert *models.Alert) (uint64, error)
	Acknowledge(ctx context.Context, alertID string) (*models.Alert, error)
	Resolve(ctx context.Context, alertID string) (*models.Alert, error)
}

// ruleSource supplies the active rule set for evaluation.
type ruleSource interface {
	ActiveRules(ctx context.Context) ([]models.AlertRule, error)
}

// coordinator runs the dual writes that span the entity and
// relationship stores.
type coordinator interface {
	CreateSensor(ctx context.Context, sensor *models.Sensor, ownerID string) error
	CreateGroup(ctx context.Context, group *models.Group) error
	AddGroupMember(ctx context.Context, groupID, userID string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	AssignRole(ctx context.Context, userID, role string) error
}

// Service wires the stores, the rule engine and the dispatcher into one
// ingest and administration surface.
type Service struct {
	docs       docstore.Store
	ts         timeseries
	dispatcher alertDispatcher
	rules      ruleSource
	coord      coordinator
	validate   *validator.Validate
	cfg        config.IngestConfig

	// failureAlerts caps sensor-failure alerts so a flapping fleet cannot
	// flood the notification log. Readings themselves are never limited.
	failureAlerts *rate.Limiter
}

// New creates the service. All dependencies are required except cfg
// zero values, which disable store retries.
func New(docs docstore.Store, ts timeseries, dispatcher alertDispatcher,
	ruleSrc ruleSource, coord coordinator, cfg config.IngestConfig) *Service {
	return &Service{
		docs:          docs,
		ts:            ts,
		dispatcher:    dispatcher,
		rules:         ruleSrc,
		coord:         coord,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		cfg:           cfg,
		failureAlerts: rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

// IngestMeasurement validates and stores one reading, then evaluates the
// active alert rules against it. The measurement is rejected before any
// store write when it fails validation, names an unknown sensor, or
// names an inactive sensor. A sensor in failure state still has its
// readings stored, and additionally raises a sensor-failure alert.
//
// Rule alerts that cannot reach the notification log do not fail the
// ingest: the reading is already durable and the alert is persisted in
// degraded mode by the dispatcher.
func (s *Service) IngestMeasurement(ctx context.Context, m *models.Measurement) error {
	start := time.Now()
	defer func() {
		metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}()

	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if err := m.Validate(); err != nil {
		metrics.MeasurementsRejected.WithLabelValues("validation").Inc()
		return err
	}
	if err := s.validate.StructCtx(ctx, m); err != nil {
		metrics.MeasurementsRejected.WithLabelValues("validation").Inc()
		return asValidation(err)
	}

	var sensor models.Sensor
	if err := s.docs.Get(ctx, docstore.CollectionSensors, m.SensorID, &sensor); err != nil {
		if faults.IsNotFound(err) {
			metrics.MeasurementsRejected.WithLabelValues("sensor_unknown").Inc()
		}
		return err
	}
	if sensor.Status == models.SensorInactive {
		metrics.MeasurementsRejected.WithLabelValues("sensor_inactive").Inc()
		return faults.Validationf("sensor_id", "sensor %s is inactive", m.SensorID)
	}

	// Location is always taken from the registry, never trusted from
	// the reading.
	m.Country = sensor.Country
	m.City = sensor.City

	if err := s.appendWithRetry(ctx, m); err != nil {
		if faults.IsValidation(err) {
			metrics.MeasurementsRejected.WithLabelValues("validation").Inc()
		} else {
			metrics.MeasurementsRejected.WithLabelValues("store").Inc()
		}
		return err
	}
	metrics.MeasurementsIngested.WithLabelValues(string(sensor.Status)).Inc()

	if sensor.Status == models.SensorFailure {
		s.raiseSensorFailure(ctx, &sensor, m)
	}
	s.evaluateRules(ctx, m, &sensor)
	return nil
}

// appendWithRetry writes the measurement, retrying only transient store
// outages. Validation failures surface immediately.
func (s *Service) appendWithRetry(ctx context.Context, m *models.Measurement) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.ts.Append(ctx, m)
		if err == nil || !faults.IsStoreUnavailable(err) {
			return err
		}
		if attempt >= s.cfg.StoreRetryAttempts {
			return err
		}
		logging.Ctx(ctx).Warn().
			Int("attempt", attempt+1).
			Err(err).
			Msg("time-series store unavailable, retrying append")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.StoreRetryDelay):
		}
	}
}

// raiseSensorFailure raises the sensor-failure alert for a reading from
// a sensor reporting hardware failure. Dispatch problems are logged,
// never propagated: the alert is a side effect of an already accepted
// reading.
func (s *Service) raiseSensorFailure(ctx context.Context, sensor *models.Sensor, m *models.Measurement) {
	if !s.failureAlerts.Allow() {
		logging.Ctx(ctx).Warn().
			Str("sensor_id", sensor.SensorID).
			Msg("sensor-failure alert suppressed by rate limit")
		return
	}

	alert := &models.Alert{
		Type:        models.AlertSensorFailure,
		SensorID:    sensor.SensorID,
		Timestamp:   m.Timestamp,
		Description: "sensor " + sensor.Name + " reporta estado de falla",
		Status:      models.AlertActive,
	}
	if _, err := s.dispatcher.Raise(ctx, alert); err != nil {
		if faults.IsDispatchDegraded(err) {
			logging.Ctx(ctx).Warn().
				Str("sensor_id", sensor.SensorID).
				Err(err).
				Msg("sensor-failure alert dispatched in degraded mode")
			return
		}
		logging.Ctx(ctx).Error().
			Str("sensor_id", sensor.SensorID).
			Err(err).
			Msg("failed to raise sensor-failure alert")
	}
}

// evaluateRules runs the active rule set against the reading and raises
// the winning alert, if any.
func (s *Service) evaluateRules(ctx context.Context, m *models.Measurement, sensor *models.Sensor) {
	candidates, err := s.rules.ActiveRules(ctx)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("failed to load active alert rules")
		return
	}
	metrics.RuleEvaluations.Add(float64(len(candidates)))

	alert := rules.Evaluate(m, sensor.Region, candidates)
	if alert == nil {
		return
	}
	if _, err := s.dispatcher.Raise(ctx, alert); err != nil {
		if faults.IsDispatchDegraded(err) {
			logging.Ctx(ctx).Warn().
				Str("alert_id", alert.ID).
				Str("rule_id", alert.RuleID).
				Err(err).
				Msg("threshold alert dispatched in degraded mode")
			return
		}
		logging.Ctx(ctx).Error().
			Str("rule_id", alert.RuleID).
			Err(err).
			Msg("failed to raise threshold alert")
	}
}

// asValidation converts a validator error into the service error
// taxonomy, keeping only the first offending field.
func asValidation(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return faults.Validationf(fe.Field(), "failed %q constraint", fe.Tag())
	}
	return faults.Validation("", err.Error())
}
