// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"

	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/models"
	"github.com/tomtom215/telemetrus/internal/websocket"
)

// Handlers holds the HTTP handlers for all endpoints. The ingest service
// carries the domain logic; handlers only decode, delegate, and encode.
type Handlers struct {
	svc      telemetryService
	hub      *websocket.Hub
	upgrader gws.Upgrader
}

// NewHandlers creates the handler set. hub may be nil when the live feed
// is disabled; the /ws endpoint then returns 404.
func NewHandlers(svc telemetryService, hub *websocket.Hub) *Handlers {
	return &Handlers{
		svc: svc,
		hub: hub,
		upgrader: gws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin enforcement belongs to the reverse proxy in front
			// of this service.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// IngestMeasurement handles POST /api/v1/measurements.
func (h *Handlers) IngestMeasurement(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var m models.Measurement
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	if err := h.svc.IngestMeasurement(r.Context(), &m); err != nil {
		if faults.IsDispatchDegraded(err) {
			rw.Accepted(m, map[string]string{"cause": err.Error()})
			return
		}
		rw.writeFault(err)
		return
	}

	rw.Created(m)
}

// QueryRange handles GET /api/v1/measurements/{sensorID}.
func (h *Handlers) QueryRange(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	from, to, ok := parseTimeRange(rw, r)
	if !ok {
		return
	}

	measurements, err := h.svc.QueryRange(r.Context(), chi.URLParam(r, "sensorID"), from, to)
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.SuccessWithCount(measurements, len(measurements))
}

// QueryByLocation handles GET /api/v1/measurements/location.
func (h *Handlers) QueryByLocation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	country, city, ok := parseLocation(rw, r)
	if !ok {
		return
	}
	from, to, ok := parseTimeRange(rw, r)
	if !ok {
		return
	}

	measurements, err := h.svc.QueryByLocation(r.Context(), country, city, from, to)
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.SuccessWithCount(measurements, len(measurements))
}

// LocationStats handles GET /api/v1/measurements/location/stats.
func (h *Handlers) LocationStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	country, city, ok := parseLocation(rw, r)
	if !ok {
		return
	}
	from, to, ok := parseTimeRange(rw, r)
	if !ok {
		return
	}

	stats, err := h.svc.LocationStats(r.Context(), country, city, from, to)
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(stats)
}

// SensorStats handles GET /api/v1/measurements/{sensorID}/stats.
func (h *Handlers) SensorStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	from, to, ok := parseTimeRange(rw, r)
	if !ok {
		return
	}

	stats, err := h.svc.SensorStats(r.Context(), chi.URLParam(r, "sensorID"), from, to)
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(stats)
}

// RegisterSensor handles POST /api/v1/sensors.
func (h *Handlers) RegisterSensor(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req struct {
		models.Sensor
		OwnerID string `json:"owner_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	if err := h.svc.RegisterSensor(r.Context(), &req.Sensor, req.OwnerID); err != nil {
		rw.writeFault(err)
		return
	}

	rw.Created(req.Sensor)
}

// GetSensor handles GET /api/v1/sensors/{sensorID}.
func (h *Handlers) GetSensor(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sensor, err := h.svc.GetSensor(r.Context(), chi.URLParam(r, "sensorID"))
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(sensor)
}

// ListSensors handles GET /api/v1/sensors.
func (h *Handlers) ListSensors(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	sensors, err := h.svc.ListSensors(r.Context())
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.SuccessWithCount(sensors, len(sensors))
}

// SetSensorStatus handles PUT /api/v1/sensors/{sensorID}/status.
func (h *Handlers) SetSensorStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req struct {
		Status models.SensorStatus `json:"estado"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	sensor, err := h.svc.SetSensorStatus(r.Context(), chi.URLParam(r, "sensorID"), req.Status)
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(sensor)
}

// CreateRule handles POST /api/v1/rules.
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var rule models.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	if err := h.svc.CreateRule(r.Context(), &rule); err != nil {
		rw.writeFault(err)
		return
	}

	rw.Created(rule)
}

// UpdateRule handles PUT /api/v1/rules/{ruleID}.
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var rule models.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	rule.ID = chi.URLParam(r, "ruleID")

	if err := h.svc.UpdateRule(r.Context(), &rule); err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(rule)
}

// GetRule handles GET /api/v1/rules/{ruleID}.
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	rule, err := h.svc.GetRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(rule)
}

// ListRules handles GET /api/v1/rules.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	rules, err := h.svc.ListRules(r.Context())
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.SuccessWithCount(rules, len(rules))
}

// ListAlerts handles GET /api/v1/alerts. An optional estado query
// parameter filters by alert status.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := models.AlertStatus(r.URL.Query().Get("estado"))
	if status != "" && !status.Valid() {
		rw.BadRequest("invalid estado filter")
		return
	}

	alerts, err := h.svc.ListAlerts(r.Context(), status)
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.SuccessWithCount(alerts, len(alerts))
}

// GetAlert handles GET /api/v1/alerts/{alertID}.
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	alert, err := h.svc.GetAlert(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(alert)
}

// AcknowledgeAlert handles POST /api/v1/alerts/{alertID}/acknowledge.
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	alert, err := h.svc.AcknowledgeAlert(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		if faults.IsDispatchDegraded(err) {
			rw.Accepted(alert, map[string]string{"cause": err.Error()})
			return
		}
		rw.writeFault(err)
		return
	}

	rw.Success(alert)
}

// ResolveAlert handles POST /api/v1/alerts/{alertID}/resolve.
func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	alert, err := h.svc.ResolveAlert(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		if faults.IsDispatchDegraded(err) {
			rw.Accepted(alert, map[string]string{"cause": err.Error()})
			return
		}
		rw.writeFault(err)
		return
	}

	rw.Success(alert)
}

// CreateUser handles POST /api/v1/users.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var user models.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	if err := h.svc.CreateUser(r.Context(), &user); err != nil {
		rw.writeFault(err)
		return
	}

	rw.Created(user)
}

// GetUser handles GET /api/v1/users/{userID}.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	user, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(user)
}

// AssignRole handles PUT /api/v1/users/{userID}/role.
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if req.Role == "" {
		rw.BadRequest("missing required field: role")
		return
	}

	if err := h.svc.AssignRole(r.Context(), chi.URLParam(r, "userID"), req.Role); err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(map[string]string{"user_id": chi.URLParam(r, "userID"), "role": req.Role})
}

// CreateGroup handles POST /api/v1/groups.
func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var group models.Group
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	if err := h.svc.CreateGroup(r.Context(), &group); err != nil {
		rw.writeFault(err)
		return
	}

	rw.Created(group)
}

// AddGroupMember handles POST /api/v1/groups/{groupID}/members.
func (h *Handlers) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if req.UserID == "" {
		rw.BadRequest("missing required field: user_id")
		return
	}

	if err := h.svc.AddGroupMember(r.Context(), chi.URLParam(r, "groupID"), req.UserID); err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(map[string]string{"group_id": chi.URLParam(r, "groupID"), "user_id": req.UserID})
}

// RemoveGroupMember handles DELETE /api/v1/groups/{groupID}/members/{userID}.
func (h *Handlers) RemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.svc.RemoveGroupMember(r.Context(), chi.URLParam(r, "groupID"), chi.URLParam(r, "userID")); err != nil {
		rw.writeFault(err)
		return
	}

	rw.NoContent()
}

// SendMessage handles POST /api/v1/messages.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var msg models.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	if err := h.svc.SendMessage(r.Context(), &msg); err != nil {
		rw.writeFault(err)
		return
	}

	rw.Created(msg)
}

// GetMessage handles GET /api/v1/messages/{messageID}.
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	msg, err := h.svc.GetMessage(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.Success(msg)
}

// ListMessages handles GET /api/v1/messages. An optional destinatario
// query parameter filters by recipient.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	messages, err := h.svc.ListMessages(r.Context(), r.URL.Query().Get("destinatario"))
	if err != nil {
		rw.writeFault(err)
		return
	}

	rw.SuccessWithCount(messages, len(messages))
}

// LiveAlerts handles GET /api/v1/ws: upgrades the connection and attaches
// it to the hub. An optional estado query parameter restricts the feed to
// one alert status.
func (h *Handlers) LiveAlerts(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		NewResponseWriter(w, r).NotFound("live alert feed is not enabled")
		return
	}

	filter := models.AlertStatus(r.URL.Query().Get("estado"))
	if filter != "" && !filter.Valid() {
		NewResponseWriter(w, r).BadRequest("invalid estado filter")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn, filter)
	h.hub.Register <- client
	client.Start()
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// parseLocation reads the pais and ciudad query parameters. Both are
// required.
func parseLocation(rw *ResponseWriter, r *http.Request) (string, string, bool) {
	q := r.URL.Query()
	country := q.Get("pais")
	if country == "" {
		rw.BadRequest("missing required query parameter: pais")
		return "", "", false
	}
	city := q.Get("ciudad")
	if city == "" {
		rw.BadRequest("missing required query parameter: ciudad")
		return "", "", false
	}
	return country, city, true
}

// parseTimeRange reads from/to RFC 3339 query parameters. A missing from
// defaults to 24 hours ago, a missing to defaults to now.
func parseTimeRange(rw *ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from, to := now.Add(-24*time.Hour), now

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rw.BadRequest("invalid from: expected RFC 3339 timestamp")
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rw.BadRequest("invalid to: expected RFC 3339 timestamp")
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	if !to.After(from) {
		rw.BadRequest("invalid range: to must be after from")
		return time.Time{}, time.Time{}, false
	}

	return from, to, true
}
