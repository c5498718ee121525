// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package models

import "time"

// User is an entity-store document. Role is denormalized here; the
// authoritative HAS_ROLE edge lives in the relationship store and the
// dual-write coordinator keeps the two in step.
type User struct {
	ID    string `json:"_id,omitempty"`
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"nombre"`
	Role  string `json:"role,omitempty"`
}

// Group is an entity-store document. Members is the denormalized member
// list; the authoritative MEMBER_OF edges live in the relationship store.
type Group struct {
	ID      string   `json:"_id,omitempty"`
	Name    string   `json:"nombre" validate:"required,min=2,max=100"`
	Members []string `json:"miembros"`
}

// HasMember reports whether the group's denormalized list contains userID.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// AddMember appends userID to the member list if absent.
// Returns false when the user was already a member.
func (g *Group) AddMember(userID string) bool {
	if g.HasMember(userID) {
		return false
	}
	g.Members = append(g.Members, userID)
	return true
}

// RemoveMember drops userID from the member list.
// Returns false when the user was not a member.
func (g *Group) RemoveMember(userID string) bool {
	for i, m := range g.Members {
		if m == userID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return true
		}
	}
	return false
}

// Message is a plain entity-store document with no cross-store logic.
// From and To reference user IDs.
type Message struct {
	ID     string    `json:"_id,omitempty"`
	From   string    `json:"remitente" validate:"required"`
	To     string    `json:"destinatario" validate:"required"`
	Body   string    `json:"contenido" validate:"required"`
	SentAt time.Time `json:"fecha_envio"`
}
