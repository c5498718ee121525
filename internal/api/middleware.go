// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/telemetrus/internal/config"
	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/metrics"
)

// requestID assigns a request ID and a fresh correlation ID to every
// request. The request ID is echoed in the X-Request-ID response header
// and embedded in error envelopes.
func requestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = logging.GenerateRequestID()
			}

			ctx := logging.ContextWithRequestID(r.Context(), id)
			ctx = logging.ContextWithNewCorrelationID(ctx)

			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// corsHandler allows the configured browser origins. With no origins
// configured the middleware is skipped entirely: go-chi/cors treats an
// empty origin list as a wildcard, which must never happen by accident.
func corsHandler(cfg config.APIConfig) func(http.Handler) http.Handler {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	})
}

// rateLimit returns an IP-keyed limiter, or a pass-through when disabled.
func rateLimit(cfg config.APIConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.RateLimitReqs,
		cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}

// statusRecorder captures the status code for metrics and access logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestMetrics records per-endpoint counters and latency, and emits a
// debug access log line for every completed request.
func requestMetrics(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(rec.status), duration)

			logging.Ctx(r.Context()).Debug().
				Str("component", "api").
				Str("method", r.Method).
				Str("endpoint", endpoint).
				Int("status", rec.status).
				Dur("duration", duration).
				Msg("request completed")
		})
	}
}
