// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeHTTPServer struct {
	started  chan struct{}
	release  chan struct{}
	shutdown atomic.Bool
	serveErr error
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	close(f.started)
	<-f.release
	if f.serveErr != nil {
		return f.serveErr
	}
	return nil
}

func (f *fakeHTTPServer) Shutdown(ctx context.Context) error {
	f.shutdown.Store(true)
	close(f.release)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if !srv.shutdown.Load() {
		t.Fatal("Shutdown was not called")
	}
}

func TestHTTPServiceSurfacesStartupFailure(t *testing.T) {
	srv := newFakeHTTPServer()
	srv.serveErr = errors.New("bind: address already in use")
	close(srv.release)

	err := NewHTTPService(srv, time.Second).Serve(context.Background())
	if err == nil || !errors.Is(err, srv.serveErr) {
		t.Fatalf("Serve returned %v, want wrapped bind error", err)
	}
}

func TestTreeRunsAndStopsServices(t *testing.T) {
	var running atomic.Int32

	svc := RunnerFunc(func(ctx context.Context) error {
		running.Add(1)
		defer running.Add(-1)
		<-ctx.Done()
		return ctx.Err()
	})

	tree := NewTree(TreeConfig{ShutdownTimeout: time.Second})
	tree.AddMessagingService(NewRunnerService("hub", svc))
	tree.AddMessagingService(NewRunnerService("bridge", svc))
	tree.AddAPIService(NewRunnerService("http", svc))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.After(2 * time.Second)
	for running.Load() != 3 {
		select {
		case <-deadline:
			t.Fatalf("running services = %d, want 3", running.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
	if got := running.Load(); got != 0 {
		t.Fatalf("running services after stop = %d, want 0", got)
	}
}

func TestRunnerServiceName(t *testing.T) {
	svc := NewRunnerService("intake-router", RunnerFunc(func(ctx context.Context) error {
		return nil
	}))
	if got := svc.String(); got != "intake-router" {
		t.Fatalf("String() = %q", got)
	}
}
