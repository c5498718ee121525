// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package models

import (
	"strings"
	"time"

	"github.com/tomtom215/telemetrus/internal/faults"
)

// RuleStatus is the administrative state of an alert rule.
type RuleStatus string

const (
	RuleActive   RuleStatus = "activa"
	RuleInactive RuleStatus = "inactiva"
)

// LocationScope is the geographic granularity at which a rule applies.
type LocationScope string

const (
	ScopeCity    LocationScope = "ciudad"
	ScopeRegion  LocationScope = "region"
	ScopeCountry LocationScope = "pais"
)

// AlertRule is a threshold rule configured by administrators. A rule with
// Status inactive, or whose validity window does not contain the
// measurement timestamp, is excluded from evaluation.
type AlertRule struct {
	ID          string `json:"_id,omitempty"`
	Name        string `json:"nombre" validate:"required,min=3,max=200"`
	Description string `json:"descripcion" validate:"required,min=10,max=500"`

	TempMin     *float64 `json:"temp_min,omitempty"`
	TempMax     *float64 `json:"temp_max,omitempty"`
	HumidityMin *float64 `json:"humidity_min,omitempty" validate:"omitempty,gte=0,lte=100"`
	HumidityMax *float64 `json:"humidity_max,omitempty" validate:"omitempty,gte=0,lte=100"`

	LocationScope LocationScope `json:"location_scope" validate:"required,oneof=ciudad region pais"`
	City          string        `json:"ciudad,omitempty"`
	Region        string        `json:"region,omitempty"`
	Country       string        `json:"pais" validate:"required,min=2"`

	// Validity window; nil bounds are treated as -inf / +inf.
	ValidFrom  *time.Time `json:"fecha_inicio,omitempty"`
	ValidUntil *time.Time `json:"fecha_fin,omitempty"`

	Status     RuleStatus `json:"estado"`
	Priority   int        `json:"prioridad" validate:"gte=1,lte=5"`
	CreatedBy  string     `json:"creado_por"`
	CreatedAt  time.Time  `json:"fecha_creacion"`
	ModifiedAt *time.Time `json:"fecha_modificacion,omitempty"`
}

// Validate checks the cross-field constraints the validator tags cannot
// express: at least one condition, coherent ranges and window, and the
// location field required by the declared scope.
func (r *AlertRule) Validate() error {
	if r.TempMin == nil && r.TempMax == nil && r.HumidityMin == nil && r.HumidityMax == nil {
		return faults.Validation("", "at least one temperature or humidity condition is required")
	}
	if r.TempMin != nil && r.TempMax != nil && *r.TempMin > *r.TempMax {
		return faults.Validation("temp_min", "must not exceed temp_max")
	}
	if r.HumidityMin != nil && r.HumidityMax != nil && *r.HumidityMin > *r.HumidityMax {
		return faults.Validation("humidity_min", "must not exceed humidity_max")
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && r.ValidFrom.After(*r.ValidUntil) {
		return faults.Validation("fecha_inicio", "must not be after fecha_fin")
	}
	switch r.LocationScope {
	case ScopeCity:
		if r.City == "" {
			return faults.Validation("ciudad", "required when location_scope is ciudad")
		}
	case ScopeRegion:
		if r.Region == "" {
			return faults.Validation("region", "required when location_scope is region")
		}
	case ScopeCountry:
	default:
		return faults.Validationf("location_scope", "unknown scope %q", r.LocationScope)
	}
	if r.Country == "" {
		return faults.Validation("pais", "required")
	}
	return nil
}

// AppliesAt reports whether t falls inside the rule's validity window.
func (r *AlertRule) AppliesAt(t time.Time) bool {
	if r.ValidFrom != nil && r.ValidFrom.After(t) {
		return false
	}
	if r.ValidUntil != nil && r.ValidUntil.Before(t) {
		return false
	}
	return true
}

// MatchesLocation reports whether the rule applies to the given location
// at its declared granularity. A city rule matches only the same city;
// region and country rules match by equality of that field. Comparison is
// case-insensitive on trimmed values, as the original system normalizes.
func (r *AlertRule) MatchesLocation(country, city, region string) bool {
	if !equalFold(r.Country, country) {
		return false
	}
	switch r.LocationScope {
	case ScopeCity:
		return city != "" && equalFold(r.City, city)
	case ScopeRegion:
		return region != "" && equalFold(r.Region, region)
	case ScopeCountry:
		return true
	}
	return false
}

// EffectiveModified is the timestamp used for the rule-selection
// tie-break: ModifiedAt when the rule has been edited, CreatedAt otherwise.
func (r *AlertRule) EffectiveModified() time.Time {
	if r.ModifiedAt != nil {
		return *r.ModifiedAt
	}
	return r.CreatedAt
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
