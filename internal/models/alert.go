// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package models

import (
	"time"

	"github.com/tomtom215/telemetrus/internal/faults"
)

// AlertType identifies what raised an alert.
// Wire values are inherited from the original deployment and must not change.
type AlertType string

const (
	AlertSensorFailure AlertType = "sensor"
	AlertClimate       AlertType = "climatica"
	AlertThreshold     AlertType = "umbral"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "activa"
	AlertAcknowledged AlertStatus = "reconocida"
	AlertResolved     AlertStatus = "resuelta"
)

// Valid reports whether s is a known alert status.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertActive, AlertAcknowledged, AlertResolved:
		return true
	}
	return false
}

// Alert is a raised alert record, stored in the entity store and
// snapshotted verbatim into the notification log.
//
// JSON tags use the Spanish field names of the original wire format;
// subscribers and stored snapshots depend on them (notably `estado`).
type Alert struct {
	ID          string      `json:"_id,omitempty"`
	Type        AlertType   `json:"tipo"`
	SensorID    string      `json:"sensor_id,omitempty"`
	Timestamp   time.Time   `json:"fecha_hora"`
	Description string      `json:"descripcion"`
	Status      AlertStatus `json:"estado"`
	Value       *float64    `json:"valor,omitempty"`
	Threshold   *float64    `json:"umbral,omitempty"`
	RuleID      string      `json:"rule_id,omitempty"`
	RuleName    string      `json:"rule_name,omitempty"`
	Priority    int         `json:"prioridad,omitempty"`
}

// alertTransitions is the full set of legal status moves.
// active→resolved without a prior acknowledge is deliberately allowed;
// it matches the existing operator workflow.
var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertActive:       {AlertAcknowledged, AlertResolved},
	AlertAcknowledged: {AlertResolved},
	AlertResolved:     {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to AlertStatus) bool {
	for _, next := range alertTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the alert to the given status, or returns
// InvalidTransitionError when the move is illegal.
func (a *Alert) Transition(to AlertStatus) error {
	if !CanTransition(a.Status, to) {
		return &faults.InvalidTransitionError{From: string(a.Status), To: string(to)}
	}
	a.Status = to
	return nil
}

// NotificationLogEntry pairs an alert snapshot with its store-assigned
// offset in the notification log. Offsets are monotonic and gapless from
// the log's perspective; the core never invents its own sequencing.
type NotificationLogEntry struct {
	Offset uint64 `json:"stream_offset"`
	Alert  Alert  `json:"alert"`
}
