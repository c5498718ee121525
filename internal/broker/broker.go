// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package broker fans live alerts out from the notification log to
// subscribers. Each subscription reads its own tail of the log, so
// subscribers never interfere with each other: every entry appended
// after Subscribe is delivered exactly once and in log order, filtered
// to the statuses the subscriber asked for.
package broker

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/metrics"
	"github.com/tomtom215/telemetrus/internal/models"
	"github.com/tomtom215/telemetrus/internal/notifylog"
)

// ErrLogClosed reports that the notification log shut down while a
// subscription was still live.
var ErrLogClosed = errors.New("notification log closed")

// tailer is the slice of the notification log the broker needs.
type tailer interface {
	Tail(ctx context.Context) (<-chan notifylog.Entry, error)
}

// State is the lifecycle phase of a subscription.
type State int32

const (
	// StateConnected means the tail is attached but no entry has
	// arrived yet.
	StateConnected State = iota

	// StateStreaming means at least one entry has been delivered.
	StateStreaming

	// StateClosed means the subscription ended cleanly.
	StateClosed

	// StateErrored means delivery stopped on a log failure.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Filter restricts which alerts a subscription receives.
type Filter struct {
	// Status limits delivery to alerts in this state at dispatch time.
	// Empty delivers everything.
	Status models.AlertStatus
}

func (f Filter) matches(a *models.Alert) bool {
	return f.Status == "" || a.Status == f.Status
}

// Subscription is one live alert feed.
type Subscription struct {
	alerts chan models.Alert
	state  atomic.Int32
	offset atomic.Uint64
	err    atomic.Value
}

// Alerts returns the delivery channel. It closes when the subscription ends.
func (s *Subscription) Alerts() <-chan models.Alert {
	return s.alerts
}

// State returns the current lifecycle phase.
func (s *Subscription) State() State {
	return State(s.state.Load())
}

// Offset returns the log offset of the last entry seen, including
// entries the filter suppressed. Zero until the first entry arrives.
func (s *Subscription) Offset() uint64 {
	return s.offset.Load()
}

// Err returns the failure that moved the subscription to StateErrored,
// or nil.
func (s *Subscription) Err() error {
	if v := s.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Broker creates subscriptions over the notification log.
type Broker struct {
	log    tailer
	buffer int
}

// New creates a broker. buffer sizes each subscriber's delivery channel.
func New(log tailer, buffer int) *Broker {
	if buffer < 1 {
		buffer = 64
	}
	return &Broker{log: log, buffer: buffer}
}

// Subscribe attaches a new tail to the log. Delivery runs until ctx is
// cancelled or the log shuts down; the Alerts channel closes either way.
func (b *Broker) Subscribe(ctx context.Context, filter Filter) (*Subscription, error) {
	entries, err := b.log.Tail(ctx)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{alerts: make(chan models.Alert, b.buffer)}
	sub.state.Store(int32(StateConnected))
	metrics.BrokerSubscribers.Inc()

	go func() {
		defer func() {
			metrics.BrokerSubscribers.Dec()
			close(sub.alerts)
		}()

		for entry := range entries {
			sub.offset.Store(entry.Offset)

			var alert models.Alert
			if err := json.Unmarshal(entry.Data, &alert); err != nil {
				metrics.BrokerSkipped.Inc()
				logging.Warn().
					Uint64("offset", entry.Offset).
					Err(err).
					Msg("skipping malformed notification log entry")
				continue
			}
			if !filter.matches(&alert) {
				continue
			}

			select {
			case <-ctx.Done():
				sub.state.Store(int32(StateClosed))
				return
			case sub.alerts <- alert:
				sub.state.Store(int32(StateStreaming))
				metrics.BrokerDelivered.Inc()
			}
		}

		// The tail closed underneath us: clean when the subscriber
		// cancelled, a log failure otherwise.
		if ctx.Err() != nil {
			sub.state.Store(int32(StateClosed))
		} else {
			sub.err.Store(ErrLogClosed)
			sub.state.Store(int32(StateErrored))
		}
	}()

	return sub, nil
}
