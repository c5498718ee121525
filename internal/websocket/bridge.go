// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package websocket

import (
	"context"
	"time"

	"github.com/tomtom215/telemetrus/internal/broker"
	"github.com/tomtom215/telemetrus/internal/logging"
)

// alertSource is the slice of the subscription broker the bridge needs.
type alertSource interface {
	Subscribe(ctx context.Context, filter broker.Filter) (*broker.Subscription, error)
}

// Bridge subscribes to the live alert feed and pushes every alert into
// the hub. Per-client status filtering happens in the hub, so the
// bridge always subscribes unfiltered.
type Bridge struct {
	source     alertSource
	hub        *Hub
	retryDelay time.Duration
}

// NewBridge creates a bridge between the broker and the hub.
func NewBridge(source alertSource, hub *Hub) *Bridge {
	return &Bridge{
		source:     source,
		hub:        hub,
		retryDelay: 2 * time.Second,
	}
}

// Serve runs the bridge until ctx is cancelled, resubscribing when the
// feed drops.
func (b *Bridge) Serve(ctx context.Context) error {
	for {
		sub, err := b.source.Subscribe(ctx, broker.Filter{})
		if err != nil {
			logging.Error().Err(err).Msg("failed to subscribe to alert feed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.retryDelay):
				continue
			}
		}

		for alert := range sub.Alerts() {
			b.hub.BroadcastAlert(alert)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().
			Uint64("last_offset", sub.Offset()).
			Str("reason", sub.State().String()).
			Msg("alert feed dropped, resubscribing")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.retryDelay):
		}
	}
}
