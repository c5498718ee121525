// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package models

import (
	"testing"
	"time"

	"github.com/tomtom215/telemetrus/internal/faults"
)

func TestAlertTransitions(t *testing.T) {
	tests := []struct {
		name string
		from AlertStatus
		to   AlertStatus
		ok   bool
	}{
		{"active to acknowledged", AlertActive, AlertAcknowledged, true},
		{"acknowledged to resolved", AlertAcknowledged, AlertResolved, true},
		{"active to resolved", AlertActive, AlertResolved, true},
		{"resolved to active", AlertResolved, AlertActive, false},
		{"resolved to acknowledged", AlertResolved, AlertAcknowledged, false},
		{"acknowledged to active", AlertAcknowledged, AlertActive, false},
		{"active to active", AlertActive, AlertActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.ok {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.ok)
			}

			a := Alert{Status: tt.from}
			err := a.Transition(tt.to)
			if tt.ok {
				if err != nil {
					t.Fatalf("Transition(%q) from %q: unexpected error: %v", tt.to, tt.from, err)
				}
				if a.Status != tt.to {
					t.Errorf("status after transition = %q, want %q", a.Status, tt.to)
				}
			} else {
				if !faults.IsInvalidTransition(err) {
					t.Fatalf("Transition(%q) from %q: got %v, want InvalidTransitionError", tt.to, tt.from, err)
				}
				if a.Status != tt.from {
					t.Errorf("status mutated on rejected transition: %q", a.Status)
				}
			}
		})
	}
}

func TestMeasurementValidate(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		m       Measurement
		wantErr bool
	}{
		{
			name: "temperature only",
			m:    Measurement{SensorID: "s1", Timestamp: now, Temperature: Float(21.5)},
		},
		{
			name: "humidity only",
			m:    Measurement{SensorID: "s1", Timestamp: now, Humidity: Float(55)},
		},
		{
			name:    "no readings",
			m:       Measurement{SensorID: "s1", Timestamp: now},
			wantErr: true,
		},
		{
			name:    "missing sensor id",
			m:       Measurement{Timestamp: now, Temperature: Float(21.5)},
			wantErr: true,
		},
		{
			name:    "temperature below range",
			m:       Measurement{SensorID: "s1", Timestamp: now, Temperature: Float(-150)},
			wantErr: true,
		},
		{
			name:    "temperature above range",
			m:       Measurement{SensorID: "s1", Timestamp: now, Temperature: Float(101)},
			wantErr: true,
		},
		{
			name:    "humidity negative",
			m:       Measurement{SensorID: "s1", Timestamp: now, Humidity: Float(-1)},
			wantErr: true,
		},
		{
			name:    "humidity above 100",
			m:       Measurement{SensorID: "s1", Timestamp: now, Humidity: Float(100.5)},
			wantErr: true,
		},
		{
			name: "boundary values accepted",
			m:    Measurement{SensorID: "s1", Timestamp: now, Temperature: Float(TemperatureMax), Humidity: Float(HumidityMax)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if tt.wantErr && !faults.IsValidation(err) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestMeasurementDatePartition(t *testing.T) {
	// Partition is derived from the UTC date regardless of the source zone.
	loc := time.FixedZone("ART", -3*60*60)
	m := Measurement{Timestamp: time.Date(2026, 3, 15, 22, 30, 0, 0, loc)}
	if got := m.DatePartition(); got != "20260316" {
		t.Errorf("DatePartition() = %q, want %q", got, "20260316")
	}
}

func TestRuleMatchesLocation(t *testing.T) {
	tests := []struct {
		name    string
		rule    AlertRule
		country string
		city    string
		region  string
		want    bool
	}{
		{
			name:    "city scope exact",
			rule:    AlertRule{LocationScope: ScopeCity, Country: "Argentina", City: "Rosario"},
			country: "Argentina", city: "Rosario",
			want: true,
		},
		{
			name:    "city scope case and space insensitive",
			rule:    AlertRule{LocationScope: ScopeCity, Country: "argentina", City: " ROSARIO "},
			country: "Argentina", city: "rosario",
			want: true,
		},
		{
			name:    "city scope wrong city",
			rule:    AlertRule{LocationScope: ScopeCity, Country: "Argentina", City: "Rosario"},
			country: "Argentina", city: "Cordoba",
			want: false,
		},
		{
			name:    "region scope",
			rule:    AlertRule{LocationScope: ScopeRegion, Country: "Argentina", Region: "Santa Fe"},
			country: "Argentina", city: "Rosario", region: "santa fe",
			want: true,
		},
		{
			name:    "region scope missing sensor region",
			rule:    AlertRule{LocationScope: ScopeRegion, Country: "Argentina", Region: "Santa Fe"},
			country: "Argentina", city: "Rosario",
			want: false,
		},
		{
			name:    "country scope ignores city",
			rule:    AlertRule{LocationScope: ScopeCountry, Country: "Argentina"},
			country: "Argentina", city: "Cordoba",
			want: true,
		},
		{
			name:    "country scope wrong country",
			rule:    AlertRule{LocationScope: ScopeCountry, Country: "Argentina"},
			country: "Chile", city: "Santiago",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.MatchesLocation(tt.country, tt.city, tt.region); got != tt.want {
				t.Errorf("MatchesLocation(%q, %q, %q) = %v, want %v", tt.country, tt.city, tt.region, got, tt.want)
			}
		})
	}
}

func TestRuleAppliesAt(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	rule := AlertRule{ValidFrom: &from, ValidUntil: &until}

	if !rule.AppliesAt(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Error("timestamp inside window should apply")
	}
	if rule.AppliesAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Error("timestamp before window should not apply")
	}
	if rule.AppliesAt(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("timestamp after window should not apply")
	}

	open := AlertRule{}
	if !open.AppliesAt(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("rule without window bounds should always apply")
	}

	halfOpen := AlertRule{ValidFrom: &from}
	if halfOpen.AppliesAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("timestamp before open-ended window start should not apply")
	}
}

func TestRuleEffectiveModified(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	modified := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	r := AlertRule{CreatedAt: created}
	if got := r.EffectiveModified(); !got.Equal(created) {
		t.Errorf("EffectiveModified() without ModifiedAt = %v, want %v", got, created)
	}

	r.ModifiedAt = &modified
	if got := r.EffectiveModified(); !got.Equal(modified) {
		t.Errorf("EffectiveModified() with ModifiedAt = %v, want %v", got, modified)
	}
}

func TestGroupMembership(t *testing.T) {
	g := Group{ID: "g1", Name: "operadores"}

	if !g.AddMember("u1") {
		t.Fatal("first AddMember should report true")
	}
	if g.AddMember("u1") {
		t.Error("duplicate AddMember should report false")
	}
	if !g.HasMember("u1") {
		t.Error("HasMember after add should be true")
	}
	if !g.RemoveMember("u1") {
		t.Error("RemoveMember of existing member should report true")
	}
	if g.RemoveMember("u1") {
		t.Error("RemoveMember of absent member should report false")
	}
}
