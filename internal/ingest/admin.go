// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package ingest

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/telemetrus/internal/docstore"
	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/models"
)

// RegisterSensor validates and stores a new sensor, creating the
// ownership edge when ownerID is set. The coordinator assigns the
// sensor ID and defaults.
func (s *Service) RegisterSensor(ctx context.Context, sensor *models.Sensor, ownerID string) error {
	if err := s.validate.StructCtx(ctx, sensor); err != nil {
		return asValidation(err)
	}
	return s.coord.CreateSensor(ctx, sensor, ownerID)
}

// GetSensor returns the sensor document, or NotFoundError.
func (s *Service) GetSensor(ctx context.Context, sensorID string) (*models.Sensor, error) {
	var sensor models.Sensor
	if err := s.docs.Get(ctx, docstore.CollectionSensors, sensorID, &sensor); err != nil {
		return nil, err
	}
	return &sensor, nil
}

// ListSensors returns all registered sensors.
func (s *Service) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	var out []models.Sensor
	err := s.docs.List(ctx, docstore.CollectionSensors, func(id string, data []byte) error {
		var sensor models.Sensor
		if err := json.Unmarshal(data, &sensor); err != nil {
			return err
		}
		out = append(out, sensor)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetSensorStatus moves a sensor between activo, inactivo and falla.
func (s *Service) SetSensorStatus(ctx context.Context, sensorID string, status models.SensorStatus) (*models.Sensor, error) {
	switch status {
	case models.SensorActive, models.SensorInactive, models.SensorFailure:
	default:
		return nil, faults.Validationf("estado", "unknown sensor status %q", status)
	}
	var sensor models.Sensor
	if err := s.docs.Get(ctx, docstore.CollectionSensors, sensorID, &sensor); err != nil {
		return nil, err
	}
	sensor.Status = status
	if err := s.docs.Put(ctx, docstore.CollectionSensors, sensorID, &sensor); err != nil {
		return nil, err
	}
	return &sensor, nil
}

// CreateRule validates and stores a new alert rule. Missing ID, status
// and creation time are filled in.
func (s *Service) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Status == "" {
		rule.Status = models.RuleActive
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	if err := s.validate.StructCtx(ctx, rule); err != nil {
		return asValidation(err)
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.docs.Put(ctx, docstore.CollectionRules, rule.ID, rule)
}

// UpdateRule replaces an existing rule and stamps the modification time,
// which feeds the rule-selection tie-break.
func (s *Service) UpdateRule(ctx context.Context, rule *models.AlertRule) error {
	if rule.ID == "" {
		return faults.Validation("_id", "required")
	}
	var existing models.AlertRule
	if err := s.docs.Get(ctx, docstore.CollectionRules, rule.ID, &existing); err != nil {
		return err
	}
	if err := s.validate.StructCtx(ctx, rule); err != nil {
		return asValidation(err)
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.CreatedAt = existing.CreatedAt
	rule.CreatedBy = existing.CreatedBy
	now := time.Now().UTC()
	rule.ModifiedAt = &now
	return s.docs.Put(ctx, docstore.CollectionRules, rule.ID, rule)
}

// GetRule returns a rule by ID, or NotFoundError.
func (s *Service) GetRule(ctx context.Context, ruleID string) (*models.AlertRule, error) {
	var rule models.AlertRule
	if err := s.docs.Get(ctx, docstore.CollectionRules, ruleID, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns every configured rule, active or not.
func (s *Service) ListRules(ctx context.Context) ([]models.AlertRule, error) {
	var out []models.AlertRule
	err := s.docs.List(ctx, docstore.CollectionRules, func(id string, data []byte) error {
		var rule models.AlertRule
		if err := json.Unmarshal(data, &rule); err != nil {
			return err
		}
		out = append(out, rule)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAlert returns an alert by ID, or NotFoundError.
func (s *Service) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	var alert models.Alert
	if err := s.docs.Get(ctx, docstore.CollectionAlerts, alertID, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListAlerts returns alerts, optionally filtered by status.
func (s *Service) ListAlerts(ctx context.Context, status models.AlertStatus) ([]models.Alert, error) {
	var out []models.Alert
	err := s.docs.List(ctx, docstore.CollectionAlerts, func(id string, data []byte) error {
		var alert models.Alert
		if err := json.Unmarshal(data, &alert); err != nil {
			return err
		}
		if status == "" || alert.Status == status {
			out = append(out, alert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AcknowledgeAlert marks an active alert as acknowledged.
func (s *Service) AcknowledgeAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return s.dispatcher.Acknowledge(ctx, alertID)
}

// ResolveAlert marks an alert as resolved. Resolved is terminal.
func (s *Service) ResolveAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return s.dispatcher.Resolve(ctx, alertID)
}

// CreateUser stores a new user. Users live only in the entity store
// until they gain group memberships or roles.
func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := s.validate.StructCtx(ctx, user); err != nil {
		return asValidation(err)
	}
	return s.docs.Put(ctx, docstore.CollectionUsers, user.ID, user)
}

// GetUser returns a user by ID, or NotFoundError.
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.docs.Get(ctx, docstore.CollectionUsers, userID, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendMessage stores a message between two known users. Both endpoints
// must exist in the entity store before the message is accepted.
func (s *Service) SendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	if err := s.validate.StructCtx(ctx, msg); err != nil {
		return asValidation(err)
	}
	var user models.User
	if err := s.docs.Get(ctx, docstore.CollectionUsers, msg.From, &user); err != nil {
		return err
	}
	if err := s.docs.Get(ctx, docstore.CollectionUsers, msg.To, &user); err != nil {
		return err
	}
	return s.docs.Put(ctx, docstore.CollectionMessages, msg.ID, msg)
}

// GetMessage returns a message by ID, or NotFoundError.
func (s *Service) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	if err := s.docs.Get(ctx, docstore.CollectionMessages, messageID, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns messages, optionally filtered to one recipient.
func (s *Service) ListMessages(ctx context.Context, to string) ([]models.Message, error) {
	var out []models.Message
	err := s.docs.List(ctx, docstore.CollectionMessages, func(id string, data []byte) error {
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		if to == "" || msg.To == to {
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateGroup stores a new group through the dual-write coordinator.
func (s *Service) CreateGroup(ctx context.Context, group *models.Group) error {
	if err := s.validate.StructCtx(ctx, group); err != nil {
		return asValidation(err)
	}
	return s.coord.CreateGroup(ctx, group)
}

// AddGroupMember adds a user to a group in both stores.
func (s *Service) AddGroupMember(ctx context.Context, groupID, userID string) error {
	return s.coord.AddGroupMember(ctx, groupID, userID)
}

// RemoveGroupMember removes a user from a group in both stores.
func (s *Service) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	return s.coord.RemoveGroupMember(ctx, groupID, userID)
}

// AssignRole grants a role to a user in both stores.
func (s *Service) AssignRole(ctx context.Context, userID, role string) error {
	return s.coord.AssignRole(ctx, userID, role)
}
