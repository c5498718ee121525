// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package rules evaluates alert rules against measurements.
//
// Evaluation is a pure function over its inputs: no clock reads, no
// store access. Callers resolve the sensor's location and load the
// candidate rules first, which keeps the breach logic trivially testable.
package rules

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/telemetrus/internal/models"
)

// breach captures which bound a rule violated and with which reading.
type breach struct {
	value     float64
	threshold float64
}

// Evaluate checks the measurement against the candidate rules and
// returns a threshold alert for the winning rule, or nil when no rule
// breaches.
//
// A rule participates when it is active, its validity window contains
// the measurement timestamp, and its location scope matches the
// sensor's location (region comes from the sensor document, the
// measurement itself carries only country and city). Within a rule the
// temperature and humidity bound pairs are conjunctive; across the two
// quantities a single violated bound is a breach.
//
// When several rules breach, the highest priority wins; ties go to the
// most recently modified rule.
func Evaluate(m *models.Measurement, sensorRegion string, candidates []models.AlertRule) *models.Alert {
	var winner *models.AlertRule
	var winnerBreach breach

	for i := range candidates {
		r := &candidates[i]
		if r.Status != models.RuleActive {
			continue
		}
		if !r.AppliesAt(m.Timestamp) {
			continue
		}
		if !r.MatchesLocation(m.Country, m.City, sensorRegion) {
			continue
		}
		b, ok := evaluateConditions(m, r)
		if !ok {
			continue
		}
		if winner == nil || betterThan(r, winner) {
			winner = r
			winnerBreach = b
		}
	}

	if winner == nil {
		return nil
	}

	return &models.Alert{
		ID:        uuid.New().String(),
		Type:      models.AlertThreshold,
		SensorID:  m.SensorID,
		Timestamp: m.Timestamp,
		Description: fmt.Sprintf("regla %q: valor %.2f fuera del umbral %.2f",
			winner.Name, winnerBreach.value, winnerBreach.threshold),
		Status:    models.AlertActive,
		Value:     models.Float(winnerBreach.value),
		Threshold: models.Float(winnerBreach.threshold),
		RuleID:    winner.ID,
		RuleName:  winner.Name,
		Priority:  winner.Priority,
	}
}

// evaluateConditions reports whether the measurement breaches the rule,
// and which bound. Temperature violations take precedence over humidity
// when both quantities breach.
func evaluateConditions(m *models.Measurement, r *models.AlertRule) (breach, bool) {
	if m.Temperature != nil {
		v := *m.Temperature
		if r.TempMax != nil && v > *r.TempMax {
			return breach{value: v, threshold: *r.TempMax}, true
		}
		if r.TempMin != nil && v < *r.TempMin {
			return breach{value: v, threshold: *r.TempMin}, true
		}
	}
	if m.Humidity != nil {
		v := *m.Humidity
		if r.HumidityMax != nil && v > *r.HumidityMax {
			return breach{value: v, threshold: *r.HumidityMax}, true
		}
		if r.HumidityMin != nil && v < *r.HumidityMin {
			return breach{value: v, threshold: *r.HumidityMin}, true
		}
	}
	return breach{}, false
}

// betterThan orders rules by priority descending, then by effective
// modification time descending.
func betterThan(a, b *models.AlertRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.EffectiveModified().After(b.EffectiveModified())
}
