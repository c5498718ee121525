// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package dualwrite coordinates writes that span the entity store and
// the relationship store. There is no cross-store transaction: the
// entity write lands first, and a failed relation write triggers a
// compensating entity write. The caller always learns about a partial
// write through a PartialWriteError, whether or not the compensation
// succeeded.
package dualwrite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/telemetrus/internal/docstore"
	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/graphstore"
	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/metrics"
	"github.com/tomtom215/telemetrus/internal/models"
)

// Coordinator performs the cross-store writes.
type Coordinator struct {
	docs  docstore.Store
	graph graphstore.Store
}

// New creates a coordinator over the two stores.
func New(docs docstore.Store, graph graphstore.Store) *Coordinator {
	return &Coordinator{docs: docs, graph: graph}
}

// partial builds the PartialWriteError for op after a failed relation
// write, running the given compensation first.
func (c *Coordinator) partial(ctx context.Context, op string, relationErr error, compensate func() error) error {
	pw := &faults.PartialWriteError{Op: op, RelationErr: relationErr}

	if err := compensate(); err != nil {
		pw.RollbackErr = err
		pw.EntityResidual = "entity write could not be compensated"
		metrics.DualWriteCompensations.WithLabelValues(op, "residual").Inc()
		logging.Ctx(ctx).Error().
			Str("op", op).
			AnErr("relation_err", relationErr).
			AnErr("rollback_err", err).
			Msg("dual write left residual entity state")
	} else {
		pw.RolledBack = true
		metrics.DualWriteCompensations.WithLabelValues(op, "rolled_back").Inc()
		logging.Ctx(ctx).Warn().
			Str("op", op).
			AnErr("relation_err", relationErr).
			Msg("dual write compensated")
	}
	return pw
}

// CreateSensor registers a sensor document and, when ownerID is set, an
// OWNS edge from the owner.
func (c *Coordinator) CreateSensor(ctx context.Context, sensor *models.Sensor, ownerID string) error {
	if sensor.SensorID == "" {
		sensor.SensorID = uuid.New().String()
	}
	if sensor.Status == "" {
		sensor.Status = models.SensorActive
	}
	if sensor.EmissionStart.IsZero() {
		sensor.EmissionStart = time.Now().UTC()
	}

	if err := c.docs.Put(ctx, docstore.CollectionSensors, sensor.SensorID, sensor); err != nil {
		return err
	}
	if ownerID == "" {
		return nil
	}

	if err := c.graph.AddOwnership(ctx, ownerID, sensor.SensorID); err != nil {
		return c.partial(ctx, "create_sensor", err, func() error {
			return c.docs.Delete(ctx, docstore.CollectionSensors, sensor.SensorID)
		})
	}
	return nil
}

// CreateGroup registers an empty group document. Groups gain edges only
// through AddGroupMember.
func (c *Coordinator) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	return c.docs.Put(ctx, docstore.CollectionGroups, group.ID, group)
}

// AddGroupMember adds the user to the group's denormalized member list
// and records the MEMBER_OF edge. The document write happens first; a
// failed edge write is compensated by restoring the previous member
// list.
func (c *Coordinator) AddGroupMember(ctx context.Context, groupID, userID string) error {
	var user models.User
	if err := c.docs.Get(ctx, docstore.CollectionUsers, userID, &user); err != nil {
		return err
	}
	var group models.Group
	if err := c.docs.Get(ctx, docstore.CollectionGroups, groupID, &group); err != nil {
		return err
	}

	if !group.AddMember(userID) {
		// Already a member; make sure the edge exists too.
		return c.graph.AddMembership(ctx, userID, groupID)
	}
	if err := c.docs.Put(ctx, docstore.CollectionGroups, groupID, &group); err != nil {
		return err
	}

	if err := c.graph.AddMembership(ctx, userID, groupID); err != nil {
		return c.partial(ctx, "add_group_member", err, func() error {
			group.RemoveMember(userID)
			return c.docs.Put(ctx, docstore.CollectionGroups, groupID, &group)
		})
	}
	return nil
}

// RemoveGroupMember removes the MEMBER_OF edge and then the document
// entry. Here the edge goes first: if the document write then fails,
// the residual is a stale member list rather than a phantom edge, and
// re-running the removal converges.
func (c *Coordinator) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	var group models.Group
	if err := c.docs.Get(ctx, docstore.CollectionGroups, groupID, &group); err != nil {
		return err
	}
	if !group.HasMember(userID) {
		return faults.NotFound("membership", userID+" in "+groupID)
	}

	if err := c.graph.RemoveMembership(ctx, userID, groupID); err != nil && !faults.IsNotFound(err) {
		return err
	}

	group.RemoveMember(userID)
	if err := c.docs.Put(ctx, docstore.CollectionGroups, groupID, &group); err != nil {
		return &faults.PartialWriteError{
			Op:               "remove_group_member",
			EntityResidual:   "member list still names the removed user",
			RelationResidual: "membership edge already removed",
			RelationErr:      err,
		}
	}
	return nil
}

// AssignRole sets the user's denormalized role field and records the
// HAS_ROLE edge. A failed edge write restores the previous role.
func (c *Coordinator) AssignRole(ctx context.Context, userID, role string) error {
	if role == "" {
		return faults.Validation("role", "required")
	}
	var user models.User
	if err := c.docs.Get(ctx, docstore.CollectionUsers, userID, &user); err != nil {
		return err
	}

	previous := user.Role
	user.Role = role
	if err := c.docs.Put(ctx, docstore.CollectionUsers, userID, &user); err != nil {
		return err
	}

	if err := c.graph.AssignRole(ctx, userID, role); err != nil {
		return c.partial(ctx, "assign_role", err, func() error {
			user.Role = previous
			return c.docs.Put(ctx, docstore.CollectionUsers, userID, &user)
		})
	}
	return nil
}
