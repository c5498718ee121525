// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Command server runs the Telemetrus node: measurement ingest over HTTP
// and NATS, the DuckDB time-series store, the alert rule engine, the
// JetStream notification log, and live WebSocket distribution. All
// long-lived components run under one supervisor tree.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/telemetrus/internal/api"
	"github.com/tomtom215/telemetrus/internal/broker"
	"github.com/tomtom215/telemetrus/internal/config"
	"github.com/tomtom215/telemetrus/internal/dispatch"
	"github.com/tomtom215/telemetrus/internal/docstore"
	"github.com/tomtom215/telemetrus/internal/dualwrite"
	"github.com/tomtom215/telemetrus/internal/graphstore"
	"github.com/tomtom215/telemetrus/internal/ingest"
	"github.com/tomtom215/telemetrus/internal/intake"
	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/notifylog"
	"github.com/tomtom215/telemetrus/internal/rules"
	"github.com/tomtom215/telemetrus/internal/supervisor"
	"github.com/tomtom215/telemetrus/internal/tsdb"
	"github.com/tomtom215/telemetrus/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("timeseries_path", cfg.Database.Path).
		Bool("nats_embedded", cfg.NATS.EmbeddedServer).
		Bool("intake_enabled", cfg.NATS.IntakeEnabled).
		Msg("Starting Telemetrus")

	// Stores.
	docs, err := docstore.Open(docstore.Options{
		Path:     cfg.Documents.Path,
		InMemory: cfg.Documents.InMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open entity store")
	}
	defer func() {
		if err := docs.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing entity store")
		}
	}()

	ts, err := tsdb.Open(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open time-series store")
	}
	defer func() {
		if err := ts.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing time-series store")
		}
	}()

	graph, err := graphstore.Open(graphstore.Options{PolicyPath: cfg.Graph.PolicyPath})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open relationship store")
	}

	// Notification log, optionally on an embedded NATS server.
	natsURL := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		embedded, err := notifylog.NewEmbeddedServer(&notifylog.ServerConfig{
			Host:      "127.0.0.1",
			Port:      4222,
			StoreDir:  cfg.NATS.StoreDir,
			MaxMemory: cfg.NATS.MaxMemory,
			MaxStore:  cfg.NATS.MaxStore,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := embedded.Shutdown(shutdownCtx); err != nil {
				logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
			}
		}()
		natsURL = embedded.ClientURL()
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := notifylog.OpenJetStream(ctx, notifylog.JetStreamConfig{
		URL:        natsURL,
		StreamName: cfg.NATS.StreamName,
		MaxAge:     time.Duration(cfg.NATS.RetentionDays) * 24 * time.Hour,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open notification log")
	}
	defer func() {
		if err := log.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing notification log")
		}
	}()

	// Core services.
	dispatcher := dispatch.New(docs, log, dispatch.Config{
		RetryAttempts: cfg.Dispatch.AppendRetryAttempts,
		RetryDelay:    cfg.Dispatch.AppendRetryDelay,
		RetryMaxDelay: cfg.Dispatch.AppendRetryMaxDelay,
	})
	svc := ingest.New(docs, ts, dispatcher, rules.NewProvider(docs), dualwrite.New(docs, graph), cfg.Ingest)

	alertBroker := broker.New(log, cfg.Broker.SubscriberBuffer)
	hub := websocket.NewHub()
	bridge := websocket.NewBridge(alertBroker, hub)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(svc, hub, cfg.API),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	// Supervisor tree.
	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: 10 * time.Second})
	tree.AddMessagingService(supervisor.NewRunnerService("websocket-hub", hub))
	tree.AddMessagingService(supervisor.NewRunnerService("alert-bridge", bridge))

	if cfg.NATS.IntakeEnabled {
		wmLogger := intake.NewLoggerAdapter()
		subscriber, err := intake.NewSubscriber(natsURL, wmLogger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create intake subscriber")
		}
		poison, err := intake.NewPoisonPublisher(natsURL, wmLogger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create poison publisher")
		}
		intakeRouter, err := intake.NewRouter(&cfg.NATS, svc, subscriber, poison, wmLogger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create intake router")
		}
		tree.AddMessagingService(supervisor.NewRunnerService("intake-router",
			supervisor.RunnerFunc(intakeRouter.Run)))
		logging.Info().Str("topic", cfg.NATS.IntakeTopic).Msg("Measurement intake enabled")
	}

	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, s := range unstopped {
		logging.Warn().Str("service", s.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Telemetrus stopped")
}
