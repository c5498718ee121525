// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/telemetrus/internal/config"
	"github.com/tomtom215/telemetrus/internal/models"
	"github.com/tomtom215/telemetrus/internal/tsdb"
	"github.com/tomtom215/telemetrus/internal/websocket"
)

// telemetryService is the slice of the ingest service the HTTP layer uses.
type telemetryService interface {
	IngestMeasurement(ctx context.Context, m *models.Measurement) error
	QueryRange(ctx context.Context, sensorID string, from, to time.Time) ([]models.Measurement, error)
	QueryByLocation(ctx context.Context, country, city string, from, to time.Time) ([]models.Measurement, error)
	SensorStats(ctx context.Context, sensorID string, from, to time.Time) (*tsdb.Stats, error)
	LocationStats(ctx context.Context, country, city string, from, to time.Time) (*tsdb.LocationStats, error)

	RegisterSensor(ctx context.Context, sensor *models.Sensor, ownerID string) error
	GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error)
	ListSensors(ctx context.Context) ([]models.Sensor, error)
	SetSensorStatus(ctx context.Context, sensorID string, status models.SensorStatus) (*models.Sensor, error)

	CreateRule(ctx context.Context, rule *models.AlertRule) error
	UpdateRule(ctx context.Context, rule *models.AlertRule) error
	GetRule(ctx context.Context, ruleID string) (*models.AlertRule, error)
	ListRules(ctx context.Context) ([]models.AlertRule, error)

	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)
	ListAlerts(ctx context.Context, status models.AlertStatus) ([]models.Alert, error)
	AcknowledgeAlert(ctx context.Context, alertID string) (*models.Alert, error)
	ResolveAlert(ctx context.Context, alertID string) (*models.Alert, error)

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	AssignRole(ctx context.Context, userID, role string) error
	CreateGroup(ctx context.Context, group *models.Group) error
	AddGroupMember(ctx context.Context, groupID, userID string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error

	SendMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	ListMessages(ctx context.Context, to string) ([]models.Message, error)
}

// NewRouter builds the full HTTP router: REST endpoints under /api/v1,
// the WebSocket feed at /api/v1/ws, Prometheus metrics at /metrics and
// liveness at /healthz.
func NewRouter(svc telemetryService, hub *websocket.Hub, cfg config.APIConfig) http.Handler {
	h := NewHandlers(svc, hub)

	r := chi.NewRouter()
	r.Use(requestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(cfg))
	r.Use(rateLimit(cfg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/measurements", func(r chi.Router) {
			r.Use(requestMetrics("measurements"))
			r.Post("/", h.IngestMeasurement)
			r.Get("/location", h.QueryByLocation)
			r.Get("/location/stats", h.LocationStats)
			r.Get("/{sensorID}", h.QueryRange)
			r.Get("/{sensorID}/stats", h.SensorStats)
		})

		r.Route("/sensors", func(r chi.Router) {
			r.Use(requestMetrics("sensors"))
			r.Post("/", h.RegisterSensor)
			r.Get("/", h.ListSensors)
			r.Get("/{sensorID}", h.GetSensor)
			r.Put("/{sensorID}/status", h.SetSensorStatus)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Use(requestMetrics("rules"))
			r.Post("/", h.CreateRule)
			r.Get("/", h.ListRules)
			r.Get("/{ruleID}", h.GetRule)
			r.Put("/{ruleID}", h.UpdateRule)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Use(requestMetrics("alerts"))
			r.Get("/", h.ListAlerts)
			r.Get("/{alertID}", h.GetAlert)
			r.Post("/{alertID}/acknowledge", h.AcknowledgeAlert)
			r.Post("/{alertID}/resolve", h.ResolveAlert)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(requestMetrics("users"))
			r.Post("/", h.CreateUser)
			r.Get("/{userID}", h.GetUser)
			r.Put("/{userID}/role", h.AssignRole)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Use(requestMetrics("groups"))
			r.Post("/", h.CreateGroup)
			r.Post("/{groupID}/members", h.AddGroupMember)
			r.Delete("/{groupID}/members/{userID}", h.RemoveGroupMember)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Use(requestMetrics("messages"))
			r.Post("/", h.SendMessage)
			r.Get("/", h.ListMessages)
			r.Get("/{messageID}", h.GetMessage)
		})

		r.Get("/ws", h.LiveAlerts)
	})

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
