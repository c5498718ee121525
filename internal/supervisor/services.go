// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Runner is anything that blocks in Serve until its context is cancelled.
// The hub, the log bridge, and the intake router all satisfy it (the
// router through RunnerFunc).
type Runner interface {
	Serve(ctx context.Context) error
}

// RunnerService adapts a Runner to suture.Service with a stable name.
type RunnerService struct {
	name   string
	runner Runner
}

// NewRunnerService wraps runner under the given name.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{name: name, runner: runner}
}

func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.Serve(ctx)
}

func (s *RunnerService) String() string {
	return s.name
}

// RunnerFunc adapts a plain func to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Serve(ctx context.Context) error {
	return f(ctx)
}

// httpServer is the lifecycle slice of *http.Server the wrapper needs.
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server under supervision. ListenAndServe
// blocks in its own goroutine; on context cancellation the server gets
// a graceful Shutdown bounded by shutdownTimeout.
type HTTPService struct {
	server          httpServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server as a supervised service.
func NewHTTPService(server httpServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The serve context is already cancelled; shutdown needs its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *HTTPService) String() string {
	return "http-server"
}
