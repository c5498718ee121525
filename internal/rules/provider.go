// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package rules

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/tomtom215/telemetrus/internal/docstore"
	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/models"
)

// Provider loads candidate rules from the entity store.
type Provider struct {
	store docstore.Store
}

// NewProvider creates a rule provider over the entity store.
func NewProvider(store docstore.Store) *Provider {
	return &Provider{store: store}
}

// ActiveRules returns all rules currently marked active. Window and
// location filtering happens in Evaluate; a malformed rule document is
// skipped with a warning rather than failing the whole load.
func (p *Provider) ActiveRules(ctx context.Context) ([]models.AlertRule, error) {
	var out []models.AlertRule
	err := p.store.List(ctx, docstore.CollectionRules, func(id string, data []byte) error {
		var r models.AlertRule
		if err := json.Unmarshal(data, &r); err != nil {
			logging.Warn().Str("rule_id", id).Err(err).Msg("skipping malformed rule document")
			return nil
		}
		if r.Status == models.RuleActive {
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
