// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/telemetrus/internal/config"
	"github.com/tomtom215/telemetrus/internal/docstore"
	"github.com/tomtom215/telemetrus/internal/dualwrite"
	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/graphstore"
	"github.com/tomtom215/telemetrus/internal/models"
	"github.com/tomtom215/telemetrus/internal/tsdb"
)

var errTSDown = errors.New("duckdb down")

type fakeTS struct {
	appended []models.Measurement
	failures int
	calls    int
}

func (f *fakeTS) Append(ctx context.Context, m *models.Measurement) error {
	f.calls++
	if f.calls <= f.failures {
		return faults.Unavailable("timeseries", errTSDown)
	}
	f.appended = append(f.appended, *m)
	return nil
}

func (f *fakeTS) QueryRange(ctx context.Context, sensorID string, from, to time.Time) ([]models.Measurement, error) {
	return nil, nil
}

func (f *fakeTS) QueryByLocation(ctx context.Context, country, city string, from, to time.Time) ([]models.Measurement, error) {
	return nil, nil
}

func (f *fakeTS) AggregateStats(ctx context.Context, sensorID string, from, to time.Time) (*tsdb.Stats, error) {
	return nil, nil
}

func (f *fakeTS) AggregateByLocation(ctx context.Context, country, city string, from, to time.Time) (*tsdb.LocationStats, error) {
	return nil, nil
}

type fakeDispatcher struct {
	raised   []models.Alert
	raiseErr error
}

func (f *fakeDispatcher) Raise(ctx context.Context, alert *models.Alert) (uint64, error) {
	if f.raiseErr != nil {
		return 0, f.raiseErr
	}
	f.raised = append(f.raised, *alert)
	return uint64(len(f.raised)), nil
}

func (f *fakeDispatcher) Acknowledge(ctx context.Context, alertID string) (*models.Alert, error) {
	return nil, nil
}

func (f *fakeDispatcher) Resolve(ctx context.Context, alertID string) (*models.Alert, error) {
	return nil, nil
}

type staticRules struct {
	rules []models.AlertRule
}

func (s *staticRules) ActiveRules(ctx context.Context) ([]models.AlertRule, error) {
	return s.rules, nil
}

type fixture struct {
	svc        *Service
	docs       docstore.Store
	ts         *fakeTS
	dispatcher *fakeDispatcher
	rules      *staticRules
}

func newFixture(t *testing.T, cfg config.IngestConfig) *fixture {
	t.Helper()
	docs, err := docstore.Open(docstore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open docstore: %v", err)
	}
	t.Cleanup(func() { docs.Close() })

	graph, err := graphstore.Open(graphstore.Options{})
	if err != nil {
		t.Fatalf("open graphstore: %v", err)
	}

	f := &fixture{
		docs:       docs,
		ts:         &fakeTS{},
		dispatcher: &fakeDispatcher{},
		rules:      &staticRules{},
	}
	f.svc = New(docs, f.ts, f.dispatcher, f.rules, dualwrite.New(docs, graph), cfg)
	return f
}

func seedSensor(t *testing.T, docs docstore.Store, status models.SensorStatus) string {
	t.Helper()
	id := uuid.NewString()
	sensor := models.Sensor{
		SensorID:      id,
		Name:          "estacion centro",
		Type:          models.SensorBoth,
		City:          "Cordoba",
		Region:        "Centro",
		Country:       "Argentina",
		Status:        status,
		EmissionStart: time.Now().UTC(),
	}
	if err := docs.Put(context.Background(), docstore.CollectionSensors, id, &sensor); err != nil {
		t.Fatalf("seed sensor: %v", err)
	}
	return id
}

func cityRule(tempMax float64) models.AlertRule {
	return models.AlertRule{
		ID:            uuid.NewString(),
		Name:          "calor extremo",
		Description:   "temperatura sobre el umbral de la ciudad",
		TempMax:       models.Float(tempMax),
		LocationScope: models.ScopeCity,
		City:          "Cordoba",
		Country:       "Argentina",
		Status:        models.RuleActive,
		Priority:      3,
		CreatedAt:     time.Now().UTC().Add(-time.Hour),
	}
}

func TestIngestStoresAndRaisesThresholdAlert(t *testing.T) {
	f := newFixture(t, config.IngestConfig{})
	sensorID := seedSensor(t, f.docs, models.SensorActive)
	f.rules.rules = []models.AlertRule{cityRule(40)}

	m := &models.Measurement{
		SensorID:    sensorID,
		Timestamp:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Temperature: models.Float(45),
	}
	if err := f.svc.IngestMeasurement(context.Background(), m); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if len(f.ts.appended) != 1 {
		t.Fatalf("appended %d measurements, want 1", len(f.ts.appended))
	}
	stored := f.ts.appended[0]
	if stored.Country != "Argentina" || stored.City != "Cordoba" {
		t.Fatalf("location not filled from sensor: %q / %q", stored.Country, stored.City)
	}

	if len(f.dispatcher.raised) != 1 {
		t.Fatalf("raised %d alerts, want 1", len(f.dispatcher.raised))
	}
	alert := f.dispatcher.raised[0]
	if alert.Type != models.AlertThreshold {
		t.Fatalf("alert type = %q, want %q", alert.Type, models.AlertThreshold)
	}
	if alert.SensorID != sensorID {
		t.Fatalf("alert sensor = %q, want %q", alert.SensorID, sensorID)
	}
	if alert.Value == nil || *alert.Value != 45 {
		t.Fatalf("alert value = %v, want 45", alert.Value)
	}
}

func TestIngestNoBreachRaisesNothing(t *testing.T) {
	f := newFixture(t, config.IngestConfig{})
	sensorID := seedSensor(t, f.docs, models.SensorActive)
	f.rules.rules = []models.AlertRule{cityRule(40)}

	m := &models.Measurement{SensorID: sensorID, Temperature: models.Float(30)}
	if err := f.svc.IngestMeasurement(context.Background(), m); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(f.dispatcher.raised) != 0 {
		t.Fatalf("raised %d alerts, want 0", len(f.dispatcher.raised))
	}
}

func TestIngestUnknownSensor(t *testing.T) {
	f := newFixture(t, config.IngestConfig{})

	m := &models.Measurement{SensorID: uuid.NewString(), Temperature: models.Float(20)}
	err := f.svc.IngestMeasurement(context.Background(), m)
	if !faults.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(f.ts.appended) != 0 {
		t.Fatal("measurement stored for unknown sensor")
	}
}

func TestIngestInactiveSensorRejected(t *testing.T) {
	f := newFixture(t, config.IngestConfig{})
	sensorID := seedSensor(t, f.docs, models.SensorInactive)

	m := &models.Measurement{SensorID: sensorID, Temperature: models.Float(20)}
	err := f.svc.IngestMeasurement(context.Background(), m)
	if !faults.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(f.ts.appended) != 0 {
		t.Fatal("measurement stored for inactive sensor")
	}
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t, config.IngestConfig{})

	tests := []struct {
		name string
		m    models.Measurement
	}{
		{"no readings", models.Measurement{SensorID: uuid.NewString()}},
		{"temperature out of range", models.Measurement{SensorID: uuid.NewString(), Temperature: models.Float(150)}},
		{"sensor id not a uuid", models.Measurement{SensorID: "sensor-1", Temperature: models.Float(20)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.m
			err := f.svc.IngestMeasurement(context.Background(), &m)
			if !faults.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(f.ts.appended) != 0 {
		t.Fatal("invalid measurement reached the store")
	}
}

func TestIngestRetriesStoreOutage(t *testing.T) {
	f := newFixture(t, config.IngestConfig{StoreRetryAttempts: 3, StoreRetryDelay: time.Millisecond})
	sensorID := seedSensor(t, f.docs, models.SensorActive)
	f.ts.failures = 2

	m := &models.Measurement{SensorID: sensorID, Temperature: models.Float(20)}
	if err := f.svc.IngestMeasurement(context.Background(), m); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if f.ts.calls != 3 {
		t.Fatalf("store called %d times, want 3", f.ts.calls)
	}
	if len(f.ts.appended) != 1 {
		t.Fatalf("appended %d measurements, want 1", len(f.ts.appended))
	}
}

func TestIngestStoreExhaustedFails(t *testing.T) {
	f := newFixture(t, config.IngestConfig{StoreRetryAttempts: 1, StoreRetryDelay: time.Millisecond})
	sensorID := seedSensor(t, f.docs, models.SensorActive)
	f.rules.rules = []models.AlertRule{cityRule(10)}
	f.ts.failures = 10

	m := &models.Measurement{SensorID: sensorID, Temperature: models.Float(20)}
	err := f.svc.IngestMeasurement(context.Background(), m)
	if !faults.IsStoreUnavailable(err) {
		t.Fatalf("expected StoreUnavailableError, got %v", err)
	}
	if f.ts.calls != 2 {
		t.Fatalf("store called %d times, want 2", f.ts.calls)
	}
	if len(f.dispatcher.raised) != 0 {
		t.Fatal("rules evaluated for a reading that was never stored")
	}
}

func TestIngestFailureSensorRaisesFailureAlert(t *testing.T) {
	f := newFixture(t, config.IngestConfig{})
	sensorID := seedSensor(t, f.docs, models.SensorFailure)

	m := &models.Measurement{SensorID: sensorID, Temperature: models.Float(20)}
	if err := f.svc.IngestMeasurement(context.Background(), m); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if len(f.ts.appended) != 1 {
		t.Fatal("reading from failing sensor should still be stored")
	}
	if len(f.dispatcher.raised) != 1 {
		t.Fatalf("raised %d alerts, want 1", len(f.dispatcher.raised))
	}
	if got := f.dispatcher.raised[0].Type; got != models.AlertSensorFailure {
		t.Fatalf("alert type = %q, want %q", got, models.AlertSensorFailure)
	}
}

func TestIngestDegradedDispatchDoesNotFailIngest(t *testing.T) {
	f := newFixture(t, config.IngestConfig{})
	sensorID := seedSensor(t, f.docs, models.SensorActive)
	f.rules.rules = []models.AlertRule{cityRule(10)}
	f.dispatcher.raiseErr = &faults.DispatchDegradedError{
		AlertID:  "a-1",
		Attempts: 5,
		Err:      errors.New("log unreachable"),
	}

	m := &models.Measurement{SensorID: sensorID, Temperature: models.Float(20)}
	if err := f.svc.IngestMeasurement(context.Background(), m); err != nil {
		t.Fatalf("degraded dispatch must not fail ingest, got %v", err)
	}
	if len(f.ts.appended) != 1 {
		t.Fatal("measurement not stored")
	}
}

func TestIngestStampsMissingTimestamp(t *testing.T) {
	f := newFixture(t, config.IngestConfig{})
	sensorID := seedSensor(t, f.docs, models.SensorActive)

	m := &models.Measurement{SensorID: sensorID, Temperature: models.Float(20)}
	if err := f.svc.IngestMeasurement(context.Background(), m); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if f.ts.appended[0].Timestamp.IsZero() {
		t.Fatal("timestamp not stamped")
	}
}
