// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package intake consumes raw measurement messages from NATS and feeds
// them into the ingest service. Transient store failures are retried
// with exponential backoff; messages that keep failing are routed to
// the poison queue instead of blocking the subject.
package intake

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/goccy/go-json"

	"github.com/tomtom215/telemetrus/internal/config"
	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/metrics"
	"github.com/tomtom215/telemetrus/internal/models"
)

// measurementIngestor is the slice of the ingest service the router needs.
type measurementIngestor interface {
	IngestMeasurement(ctx context.Context, m *models.Measurement) error
}

// Router consumes the intake subject and runs each payload through the
// ingest pipeline.
type Router struct {
	router   *message.Router
	ingestor measurementIngestor
	topic    string
}

// countingPoisonPublisher wraps the poison queue publisher so every
// poisoned message is counted.
type countingPoisonPublisher struct {
	inner message.Publisher
}

func (p countingPoisonPublisher) Publish(topic string, msgs ...*message.Message) error {
	if err := p.inner.Publish(topic, msgs...); err != nil {
		return err
	}
	metrics.IntakeMessagesPoisoned.Add(float64(len(msgs)))
	return nil
}

func (p countingPoisonPublisher) Close() error {
	return p.inner.Close()
}

// NewRouter builds the intake router over the given subscriber. The
// publisher is used only for the poison queue; it may be nil, which
// disables poisoning and drops exhausted messages back to the broker.
func NewRouter(
	cfg *config.NATSConfig,
	ingestor measurementIngestor,
	subscriber message.Subscriber,
	poisonPublisher message.Publisher,
	logger watermill.LoggerAdapter,
) (*Router, error) {
	if logger == nil {
		logger = NewLoggerAdapter()
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.RouterCloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	r := &Router{
		router:   wmRouter,
		ingestor: ingestor,
		topic:    cfg.IntakeTopic,
	}

	wmRouter.AddPlugin(plugin.SignalsHandler)
	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RouterRetryCount,
		InitialInterval: cfg.RouterRetryInitialInterval,
		Multiplier:      2.0,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	if poisonPublisher != nil && cfg.RouterPoisonQueueTopic != "" {
		poison, err := middleware.PoisonQueue(
			countingPoisonPublisher{inner: poisonPublisher},
			cfg.RouterPoisonQueueTopic,
		)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	}

	wmRouter.AddConsumerHandler(
		"measurement_intake",
		cfg.IntakeTopic,
		subscriber,
		r.handleMeasurement,
	)
	return r, nil
}

// handleMeasurement processes one raw measurement message. Returning an
// error triggers the retry middleware; permanent rejections are logged
// and acked so the broker does not redeliver them forever.
func (r *Router) handleMeasurement(msg *message.Message) error {
	metrics.IntakeMessagesConsumed.Inc()

	ctx := msg.Context()
	if cid := middleware.MessageCorrelationID(msg); cid != "" {
		ctx = logging.ContextWithCorrelationID(ctx, cid)
	}

	var m models.Measurement
	if err := json.Unmarshal(msg.Payload, &m); err != nil {
		logging.Ctx(ctx).Warn().
			Str("message_uuid", msg.UUID).
			Err(err).
			Msg("dropping unparseable intake message")
		return nil
	}

	err := r.ingestor.IngestMeasurement(ctx, &m)
	switch {
	case err == nil:
		return nil
	case faults.IsValidation(err) || faults.IsNotFound(err):
		logging.Ctx(ctx).Warn().
			Str("message_uuid", msg.UUID).
			Str("sensor_id", m.SensorID).
			Err(err).
			Msg("dropping rejected measurement")
		return nil
	default:
		return err
	}
}

// Run starts the router and blocks until ctx is cancelled or Close is
// called.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel that closes once all handlers are consuming.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close stops the router, waiting up to the configured close timeout
// for in-flight messages.
func (r *Router) Close() error {
	return r.router.Close()
}
