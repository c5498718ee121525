// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package notifylog

import (
	"context"
	"errors"
	"sync"

	"github.com/tomtom215/telemetrus/internal/faults"
)

var errLogClosed = errors.New("notification log closed")

// MemoryLog implements Log in memory. Offsets start at 1.
type MemoryLog struct {
	mu      sync.Mutex
	next    uint64
	closed  bool
	readers map[*memoryReader]struct{}
}

type memoryReader struct {
	mu      sync.Mutex
	pending []Entry
	wake    chan struct{} // capacity 1, signals new pending entries
	out     chan Entry
}

// NewMemoryLog creates an empty in-memory notification log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		next:    1,
		readers: make(map[*memoryReader]struct{}),
	}
}

// Append adds a record and fans it out to all live tails.
func (l *MemoryLog) Append(ctx context.Context, data []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, faults.Unavailable("notification_log", errLogClosed)
	}
	offset := l.next
	l.next++

	record := make([]byte, len(data))
	copy(record, data)
	entry := Entry{Offset: offset, Data: record}

	for r := range l.readers {
		r.enqueue(entry)
	}
	l.mu.Unlock()

	return offset, nil
}

// Tail returns a channel of entries appended after this call.
func (l *MemoryLog) Tail(ctx context.Context) (<-chan Entry, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, faults.Unavailable("notification_log", errLogClosed)
	}
	r := &memoryReader{
		wake: make(chan struct{}, 1),
		out:  make(chan Entry),
	}
	l.readers[r] = struct{}{}
	l.mu.Unlock()

	go func() {
		defer close(r.out)
		defer l.dropReader(r)

		for {
			r.mu.Lock()
			if len(r.pending) == 0 {
				r.mu.Unlock()
				select {
				case <-ctx.Done():
					return
				case _, ok := <-r.wake:
					if !ok {
						return
					}
					continue
				}
			}
			entry := r.pending[0]
			r.pending = r.pending[1:]
			r.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case r.out <- entry:
			}
		}
	}()

	return r.out, nil
}

// Close stops all tails. Subsequent appends fail.
func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for r := range l.readers {
		close(r.wake)
	}
	l.readers = make(map[*memoryReader]struct{})
	return nil
}

func (l *MemoryLog) dropReader(r *memoryReader) {
	l.mu.Lock()
	delete(l.readers, r)
	l.mu.Unlock()
}

func (r *memoryReader) enqueue(e Entry) {
	r.mu.Lock()
	r.pending = append(r.pending, e)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}
