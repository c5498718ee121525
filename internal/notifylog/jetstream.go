// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package notifylog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/logging"
)

// Subject onto which alert records are published.
const alertSubject = "alerts.raised"

// JetStreamConfig configures the JetStream-backed notification log.
type JetStreamConfig struct {
	// URL of the NATS server.
	URL string

	// StreamName of the alert stream.
	StreamName string

	// MaxAge bounds record retention.
	MaxAge time.Duration
}

// JetStreamLog implements Log on a NATS JetStream stream. The stream
// sequence number of each published record is the log offset, so offsets
// are strictly increasing and survive restarts.
type JetStreamLog struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	cfg    JetStreamConfig
}

// OpenJetStream connects to NATS and ensures the alert stream exists.
// Creation is idempotent: an existing stream gets its configuration updated.
func OpenJetStream(ctx context.Context, cfg JetStreamConfig) (*JetStreamLog, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, faults.Unavailable("notification_log", fmt.Errorf("connect %s: %w", cfg.URL, err))
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, faults.Unavailable("notification_log", fmt.Errorf("jetstream context: %w", err))
	}

	streamCfg := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Subjects:    []string{alertSubject},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		AllowDirect: true,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	switch {
	case err == nil:
		stream, err = js.UpdateStream(ctx, streamCfg)
		if err != nil {
			nc.Close()
			return nil, faults.Unavailable("notification_log", fmt.Errorf("update stream %s: %w", cfg.StreamName, err))
		}
	case errors.Is(err, jetstream.ErrStreamNotFound):
		stream, err = js.CreateStream(ctx, streamCfg)
		if err != nil {
			nc.Close()
			return nil, faults.Unavailable("notification_log", fmt.Errorf("create stream %s: %w", cfg.StreamName, err))
		}
	default:
		nc.Close()
		return nil, faults.Unavailable("notification_log", fmt.Errorf("check stream %s: %w", cfg.StreamName, err))
	}

	return &JetStreamLog{nc: nc, js: js, stream: stream, cfg: cfg}, nil
}

// Append publishes a record; the acked stream sequence is the offset.
func (l *JetStreamLog) Append(ctx context.Context, data []byte) (uint64, error) {
	ack, err := l.js.Publish(ctx, alertSubject, data)
	if err != nil {
		return 0, faults.Unavailable("notification_log", fmt.Errorf("publish: %w", err))
	}
	return ack.Sequence, nil
}

// Tail consumes entries from the stream's current end. An ordered
// consumer with DeliverNew gives tail-only, in-order, exactly-once
// delivery per subscription.
func (l *JetStreamLog) Tail(ctx context.Context) (<-chan Entry, error) {
	cons, err := l.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, faults.Unavailable("notification_log", fmt.Errorf("ordered consumer: %w", err))
	}

	out := make(chan Entry)
	var mu sync.Mutex
	closed := false

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		meta, err := msg.Metadata()
		if err != nil {
			logging.Warn().Err(err).Msg("notification log entry without metadata, skipping")
			return
		}
		entry := Entry{Offset: meta.Sequence.Stream, Data: msg.Data()}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ctx.Done():
		case out <- entry:
		}
	})
	if err != nil {
		return nil, faults.Unavailable("notification_log", fmt.Errorf("consume: %w", err))
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		// A callback blocked on the send above unblocks via ctx.Done
		// and releases the mutex before the channel closes.
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

// Close drains the connection.
func (l *JetStreamLog) Close() error {
	if err := l.nc.Drain(); err != nil {
		l.nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
