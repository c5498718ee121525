// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package websocket pushes live alerts to browser and CLI clients.
// The hub owns the client set; the bridge feeds it from the
// subscription broker.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/metrics"
	"github.com/tomtom215/telemetrus/internal/models"
)

// Message types for WebSocket communication.
const (
	MessageTypeAlert = "alert"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

// Message is the envelope every WebSocket frame carries.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and fans alerts out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.Alert
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub with a buffered broadcast queue.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan models.Alert, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve runs the hub until ctx is cancelled. Lifecycle events take
// priority over broadcasts so the client set is settled before any
// message is delivered.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case alert := <-h.broadcast:
			h.broadcastToClients(alert)
		}
	}
}

// BroadcastAlert queues an alert for delivery to every matching client.
// A full queue drops the alert rather than blocking the caller; the
// notification log remains the durable record.
func (h *Hub) BroadcastAlert(alert models.Alert) {
	select {
	case h.broadcast <- alert:
	default:
		logging.Warn().
			Str("alert_id", alert.ID).
			Msg("broadcast queue full, dropping alert")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Inc()
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.WSConnections.Dec()
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// broadcastToClients sends the alert to every client whose filter
// matches, in client-ID order so delivery order is reproducible.
func (h *Hub) broadcastToClients(alert models.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	msg := Message{Type: MessageTypeAlert, Data: alert}

	var toRemove []*Client
	for _, client := range clients {
		if !client.wants(&alert) {
			continue
		}
		select {
		case client.send <- msg:
			metrics.WSMessagesSent.Inc()
		default:
			// Slow consumer, drop the connection.
			toRemove = append(toRemove, client)
		}
	}
	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
	}
	h.mu.Unlock()

	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", count).
		Str("reason", ctx.Err().Error()).
		Msg("websocket hub stopped")
}
