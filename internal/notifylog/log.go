// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package notifylog provides the append-only notification log. Every
// dispatched alert is appended as an immutable record with a strictly
// increasing offset; live subscribers read the tail, records appended
// before a subscription started are never replayed to it.
//
// The production backend is a NATS JetStream stream, where the stream
// sequence number is the offset. MemoryLog backs tests and ephemeral
// deployments with identical semantics.
package notifylog

import "context"

// Entry is one immutable record of the log.
type Entry struct {
	// Offset is strictly increasing across the log's lifetime.
	Offset uint64

	// Data is the serialized alert snapshot at dispatch time.
	Data []byte
}

// Log is the append-only notification log contract.
type Log interface {
	// Append adds a record and returns its offset. Offsets of two
	// appends observed in order are themselves in order.
	Append(ctx context.Context, data []byte) (uint64, error)

	// Tail returns a channel delivering entries appended after this
	// call, in offset order, each exactly once. The channel closes
	// when ctx is cancelled or the log shuts down.
	Tail(ctx context.Context) (<-chan Entry, error)

	// Close stops delivery to all tails and releases resources.
	Close() error
}
