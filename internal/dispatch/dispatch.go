// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package dispatch persists raised alerts and feeds the notification log.
//
// The entity store is the source of truth for alert state; the log entry
// is an immutable snapshot taken at dispatch time. An alert that cannot
// be appended to the log after bounded retries is still persisted, the
// caller gets a DispatchDegradedError and live subscribers simply never
// see that alert.
package dispatch

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/telemetrus/internal/docstore"
	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/metrics"
	"github.com/tomtom215/telemetrus/internal/models"
)

// appender is the slice of the notification log the dispatcher needs.
type appender interface {
	Append(ctx context.Context, data []byte) (uint64, error)
}

// Config bounds the append retry loop.
type Config struct {
	// RetryAttempts is the total number of append attempts.
	RetryAttempts int

	// RetryDelay is the initial backoff; it doubles per attempt.
	RetryDelay time.Duration

	// RetryMaxDelay caps the backoff.
	RetryMaxDelay time.Duration
}

// Dispatcher owns the alert lifecycle: raising, acknowledgement, resolution.
type Dispatcher struct {
	docs docstore.Store
	log  appender
	cfg  Config
}

// New creates a dispatcher.
func New(docs docstore.Store, log appender, cfg Config) *Dispatcher {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	return &Dispatcher{docs: docs, log: log, cfg: cfg}
}

// Raise persists the alert and appends its snapshot to the notification
// log. The returned offset is the log position of the snapshot.
//
// When the log stays unreachable through all retries the alert remains
// persisted and the error is a DispatchDegradedError; callers must not
// treat the alert as lost.
func (d *Dispatcher) Raise(ctx context.Context, alert *models.Alert) (uint64, error) {
	if alert.Status == "" {
		alert.Status = models.AlertActive
	}
	if err := d.docs.Put(ctx, docstore.CollectionAlerts, alert.ID, alert); err != nil {
		return 0, err
	}
	metrics.AlertsRaised.WithLabelValues(string(alert.Type)).Inc()

	snapshot, err := json.Marshal(alert)
	if err != nil {
		return 0, &faults.DispatchDegradedError{AlertID: alert.ID, Attempts: 0, Err: err}
	}

	delay := d.cfg.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= d.cfg.RetryAttempts; attempt++ {
		offset, err := d.log.Append(ctx, snapshot)
		if err == nil {
			metrics.DispatchAppends.Inc()
			logging.Ctx(ctx).Debug().
				Str("alert_id", alert.ID).
				Uint64("offset", offset).
				Msg("alert dispatched")
			return offset, nil
		}
		lastErr = err

		if attempt < d.cfg.RetryAttempts {
			metrics.DispatchRetries.Inc()
			logging.Ctx(ctx).Warn().
				Str("alert_id", alert.ID).
				Int("attempt", attempt).
				Err(err).
				Msg("notification log append failed, retrying")

			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = d.cfg.RetryAttempts
			case <-time.After(delay):
			}
			delay *= 2
			if delay > d.cfg.RetryMaxDelay {
				delay = d.cfg.RetryMaxDelay
			}
		}
	}

	metrics.DispatchDegraded.Inc()
	logging.Ctx(ctx).Error().
		Str("alert_id", alert.ID).
		Int("attempts", d.cfg.RetryAttempts).
		Err(lastErr).
		Msg("alert persisted but not dispatched to notification log")
	return 0, &faults.DispatchDegradedError{
		AlertID:  alert.ID,
		Attempts: d.cfg.RetryAttempts,
		Err:      lastErr,
	}
}

// Acknowledge moves an active alert to acknowledged.
func (d *Dispatcher) Acknowledge(ctx context.Context, alertID string) (*models.Alert, error) {
	return d.transition(ctx, alertID, models.AlertAcknowledged)
}

// Resolve moves an active or acknowledged alert to resolved.
func (d *Dispatcher) Resolve(ctx context.Context, alertID string) (*models.Alert, error) {
	return d.transition(ctx, alertID, models.AlertResolved)
}

// transition loads, transitions, and persists the alert. State changes
// never touch the notification log; entries are immutable snapshots.
func (d *Dispatcher) transition(ctx context.Context, alertID string, to models.AlertStatus) (*models.Alert, error) {
	var alert models.Alert
	if err := d.docs.Get(ctx, docstore.CollectionAlerts, alertID, &alert); err != nil {
		return nil, err
	}

	from := alert.Status
	if err := alert.Transition(to); err != nil {
		return nil, err
	}
	if err := d.docs.Put(ctx, docstore.CollectionAlerts, alertID, &alert); err != nil {
		return nil, err
	}

	metrics.AlertTransitions.WithLabelValues(string(from), string(to)).Inc()
	logging.Ctx(ctx).Info().
		Str("alert_id", alertID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("alert transitioned")
	return &alert, nil
}
