// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package rules

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/telemetrus/internal/docstore"
	"github.com/tomtom215/telemetrus/internal/models"
)

var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func cityRule(id string, tempMax float64, priority int) models.AlertRule {
	return models.AlertRule{
		ID:            id,
		Name:          "regla " + id,
		Description:   "umbral de temperatura para Rosario",
		TempMax:       models.Float(tempMax),
		LocationScope: models.ScopeCity,
		City:          "Rosario",
		Country:       "Argentina",
		Status:        models.RuleActive,
		Priority:      priority,
		CreatedAt:     noon.Add(-24 * time.Hour),
	}
}

func measurement(temp float64) *models.Measurement {
	return &models.Measurement{
		SensorID:    "s1",
		Timestamp:   noon,
		Temperature: models.Float(temp),
		Country:     "Argentina",
		City:        "Rosario",
	}
}

func TestEvaluateBreach(t *testing.T) {
	rules := []models.AlertRule{cityRule("r1", 40, 3)}

	alert := Evaluate(measurement(45), "", rules)
	if alert == nil {
		t.Fatal("45 over max 40 should raise an alert")
	}
	if alert.Type != models.AlertThreshold {
		t.Errorf("type = %q, want umbral", alert.Type)
	}
	if alert.Status != models.AlertActive {
		t.Errorf("status = %q, want activa", alert.Status)
	}
	if *alert.Value != 45 {
		t.Errorf("value = %v, want the breaching reading 45", *alert.Value)
	}
	if *alert.Threshold != 40 {
		t.Errorf("threshold = %v, want the violated bound 40", *alert.Threshold)
	}
	if alert.RuleID != "r1" || alert.SensorID != "s1" {
		t.Errorf("alert not linked to rule/sensor: %+v", alert)
	}
}

func TestEvaluateNoBreach(t *testing.T) {
	rules := []models.AlertRule{cityRule("r1", 40, 3)}

	if alert := Evaluate(measurement(35), "", rules); alert != nil {
		t.Errorf("35 under max 40 raised %+v", alert)
	}
	// Right at the bound is not a breach.
	if alert := Evaluate(measurement(40), "", rules); alert != nil {
		t.Errorf("value equal to max raised %+v", alert)
	}
}

func TestEvaluateMinBound(t *testing.T) {
	r := cityRule("r1", 0, 3)
	r.TempMax = nil
	r.TempMin = models.Float(-5)

	alert := Evaluate(measurement(-10), "", []models.AlertRule{r})
	if alert == nil {
		t.Fatal("-10 under min -5 should raise an alert")
	}
	if *alert.Threshold != -5 {
		t.Errorf("threshold = %v, want the violated bound -5", *alert.Threshold)
	}
}

func TestEvaluateInactiveRuleIgnored(t *testing.T) {
	r := cityRule("r1", 40, 3)
	r.Status = models.RuleInactive

	if alert := Evaluate(measurement(45), "", []models.AlertRule{r}); alert != nil {
		t.Errorf("inactive rule raised %+v", alert)
	}
}

func TestEvaluateWindow(t *testing.T) {
	r := cityRule("r1", 40, 3)
	from := noon.Add(time.Hour)
	r.ValidFrom = &from

	if alert := Evaluate(measurement(45), "", []models.AlertRule{r}); alert != nil {
		t.Errorf("measurement before validity window raised %+v", alert)
	}

	r.ValidFrom = nil
	until := noon.Add(-time.Hour)
	r.ValidUntil = &until
	if alert := Evaluate(measurement(45), "", []models.AlertRule{r}); alert != nil {
		t.Errorf("measurement after validity window raised %+v", alert)
	}
}

func TestEvaluateLocationScopes(t *testing.T) {
	city := cityRule("city", 40, 3)

	region := cityRule("region", 40, 3)
	region.LocationScope = models.ScopeRegion
	region.City = ""
	region.Region = "Santa Fe"

	country := cityRule("country", 40, 3)
	country.LocationScope = models.ScopeCountry
	country.City = ""

	m := measurement(45)
	m.City = "Cordoba"

	// Wrong city: only region (mismatched) and country rules remain.
	alert := Evaluate(m, "Cordoba", []models.AlertRule{city, region, country})
	if alert == nil || alert.RuleID != "country" {
		t.Fatalf("alert = %+v, want country rule to win for Cordoba", alert)
	}

	// Sensor in Santa Fe region matches the region rule too; equal
	// priority, region created later wins the tie below, so pin priority.
	region.Priority = 4
	alert = Evaluate(m, "Santa Fe", []models.AlertRule{city, region, country})
	if alert == nil || alert.RuleID != "region" {
		t.Fatalf("alert = %+v, want region rule for Santa Fe sensor", alert)
	}

	// No region on the sensor: region-scoped rule cannot match.
	alert = Evaluate(m, "", []models.AlertRule{region})
	if alert != nil {
		t.Errorf("region rule without sensor region raised %+v", alert)
	}
}

func TestEvaluateHumidity(t *testing.T) {
	r := cityRule("r1", 0, 3)
	r.TempMax = nil
	r.HumidityMax = models.Float(80)

	m := measurement(0)
	m.Temperature = nil
	m.Humidity = models.Float(91)

	alert := Evaluate(m, "", []models.AlertRule{r})
	if alert == nil {
		t.Fatal("91 over humidity max 80 should raise an alert")
	}
	if *alert.Value != 91 || *alert.Threshold != 80 {
		t.Errorf("value/threshold = %v/%v, want 91/80", *alert.Value, *alert.Threshold)
	}
}

func TestEvaluateTemperaturePrecedence(t *testing.T) {
	r := cityRule("r1", 40, 3)
	r.HumidityMax = models.Float(80)

	m := measurement(45)
	m.Humidity = models.Float(95)

	alert := Evaluate(m, "", []models.AlertRule{r})
	if alert == nil {
		t.Fatal("expected alert")
	}
	if *alert.Value != 45 || *alert.Threshold != 40 {
		t.Errorf("value/threshold = %v/%v, want temperature breach to take precedence", *alert.Value, *alert.Threshold)
	}
}

func TestEvaluatePriorityWins(t *testing.T) {
	low := cityRule("low", 40, 2)
	high := cityRule("high", 42, 5)

	alert := Evaluate(measurement(45), "", []models.AlertRule{low, high})
	if alert == nil || alert.RuleID != "high" {
		t.Fatalf("alert = %+v, want priority 5 rule over priority 2", alert)
	}
	if alert.Priority != 5 {
		t.Errorf("priority = %d, want 5", alert.Priority)
	}
	if *alert.Threshold != 42 {
		t.Errorf("threshold = %v, want winning rule's bound 42", *alert.Threshold)
	}
}

func TestEvaluatePriorityTieBreaksOnModified(t *testing.T) {
	older := cityRule("older", 40, 3)
	newer := cityRule("newer", 41, 3)
	modified := noon.Add(-time.Hour)
	newer.ModifiedAt = &modified

	alert := Evaluate(measurement(45), "", []models.AlertRule{older, newer})
	if alert == nil || alert.RuleID != "newer" {
		t.Fatalf("alert = %+v, want most recently modified rule on tie", alert)
	}

	// Order of candidates must not matter.
	alert = Evaluate(measurement(45), "", []models.AlertRule{newer, older})
	if alert == nil || alert.RuleID != "newer" {
		t.Fatalf("alert = %+v, want same winner regardless of order", alert)
	}
}

func TestEvaluateNoCandidates(t *testing.T) {
	if alert := Evaluate(measurement(45), "", nil); alert != nil {
		t.Errorf("no rules raised %+v", alert)
	}
}

func TestProviderActiveRules(t *testing.T) {
	store, err := docstore.Open(docstore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	active := cityRule("r1", 40, 3)
	inactive := cityRule("r2", 40, 3)
	inactive.Status = models.RuleInactive

	if err := store.Put(ctx, docstore.CollectionRules, active.ID, &active); err != nil {
		t.Fatalf("Put active: %v", err)
	}
	if err := store.Put(ctx, docstore.CollectionRules, inactive.ID, &inactive); err != nil {
		t.Fatalf("Put inactive: %v", err)
	}

	got, err := NewProvider(store).ActiveRules(ctx)
	if err != nil {
		t.Fatalf("ActiveRules: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" {
		t.Errorf("ActiveRules = %+v, want only r1", got)
	}
}
