// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package graphstore provides the relationship store. Edges between
// users, groups, roles, and sensors are kept as Casbin grouping
// policies: g holds MEMBER_OF, g2 holds HAS_ROLE, g3 holds OWNS.
//
// The entity store carries denormalized copies of some of these
// relations; the dual-write coordinator is responsible for keeping the
// two stores in step.
package graphstore

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/telemetrus/internal/faults"
)

//go:embed model.conf
var embeddedModel string

// Named grouping relations in the model.
const (
	relationMemberOf = "g"
	relationHasRole  = "g2"
	relationOwns     = "g3"
)

// Store is the relationship store contract.
type Store interface {
	AddMembership(ctx context.Context, userID, groupID string) error
	RemoveMembership(ctx context.Context, userID, groupID string) error
	HasMembership(ctx context.Context, userID, groupID string) (bool, error)
	MembersOf(ctx context.Context, groupID string) ([]string, error)
	GroupsOf(ctx context.Context, userID string) ([]string, error)

	AssignRole(ctx context.Context, userID, role string) error
	RemoveRole(ctx context.Context, userID, role string) error
	RolesOf(ctx context.Context, userID string) ([]string, error)

	AddOwnership(ctx context.Context, userID, sensorID string) error
	OwnedSensors(ctx context.Context, userID string) ([]string, error)
	OwnersOf(ctx context.Context, sensorID string) ([]string, error)
}

// CasbinStore implements Store on a synced Casbin enforcer.
type CasbinStore struct {
	enforcer *casbin.SyncedEnforcer
	persist  bool
}

// Options configures a CasbinStore.
type Options struct {
	// PolicyPath is the CSV file the edge set is persisted to. Empty
	// keeps edges in memory only.
	PolicyPath string
}

// Open creates the relationship store.
func Open(opts Options) (*CasbinStore, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load relationship model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	persist := false
	if opts.PolicyPath != "" {
		adapter := fileadapter.NewAdapter(opts.PolicyPath)
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
		persist = true
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("create relationship enforcer: %w", err)
	}

	return &CasbinStore{enforcer: enforcer, persist: persist}, nil
}

func (s *CasbinStore) addEdge(ctx context.Context, relation, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if from == "" || to == "" {
		return faults.Validation("edge", "both endpoints are required")
	}
	if _, err := s.enforcer.AddNamedGroupingPolicy(relation, from, to); err != nil {
		return faults.Unavailable("relations", fmt.Errorf("add %s edge %s->%s: %w", relation, from, to, err))
	}
	return s.save()
}

func (s *CasbinStore) removeEdge(ctx context.Context, relation, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed, err := s.enforcer.RemoveNamedGroupingPolicy(relation, from, to)
	if err != nil {
		return faults.Unavailable("relations", fmt.Errorf("remove %s edge %s->%s: %w", relation, from, to, err))
	}
	if !removed {
		return faults.NotFound("edge", from+"->"+to)
	}
	return s.save()
}

func (s *CasbinStore) save() error {
	if !s.persist {
		return nil
	}
	if err := s.enforcer.SavePolicy(); err != nil {
		return faults.Unavailable("relations", fmt.Errorf("persist policy: %w", err))
	}
	return nil
}

// outEdges returns the targets of all edges leaving from.
func (s *CasbinStore) outEdges(ctx context.Context, relation, from string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetFilteredNamedGroupingPolicy(relation, 0, from)
	if err != nil {
		return nil, faults.Unavailable("relations", fmt.Errorf("list %s edges from %s: %w", relation, from, err))
	}
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		if len(rule) >= 2 {
			out = append(out, rule[1])
		}
	}
	return out, nil
}

// inEdges returns the sources of all edges pointing at to.
func (s *CasbinStore) inEdges(ctx context.Context, relation, to string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetFilteredNamedGroupingPolicy(relation, 1, to)
	if err != nil {
		return nil, faults.Unavailable("relations", fmt.Errorf("list %s edges to %s: %w", relation, to, err))
	}
	in := make([]string, 0, len(rules))
	for _, rule := range rules {
		if len(rule) >= 2 {
			in = append(in, rule[0])
		}
	}
	return in, nil
}

// AddMembership records a MEMBER_OF edge. Adding an existing edge is idempotent.
func (s *CasbinStore) AddMembership(ctx context.Context, userID, groupID string) error {
	return s.addEdge(ctx, relationMemberOf, userID, groupID)
}

// RemoveMembership removes a MEMBER_OF edge.
// Returns faults.NotFoundError when the edge does not exist.
func (s *CasbinStore) RemoveMembership(ctx context.Context, userID, groupID string) error {
	return s.removeEdge(ctx, relationMemberOf, userID, groupID)
}

// HasMembership reports whether the MEMBER_OF edge exists.
func (s *CasbinStore) HasMembership(ctx context.Context, userID, groupID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	has, err := s.enforcer.HasNamedGroupingPolicy(relationMemberOf, userID, groupID)
	if err != nil {
		return false, faults.Unavailable("relations", err)
	}
	return has, nil
}

// MembersOf lists users with a MEMBER_OF edge into the group.
func (s *CasbinStore) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	return s.inEdges(ctx, relationMemberOf, groupID)
}

// GroupsOf lists groups the user belongs to.
func (s *CasbinStore) GroupsOf(ctx context.Context, userID string) ([]string, error) {
	return s.outEdges(ctx, relationMemberOf, userID)
}

// AssignRole records a HAS_ROLE edge.
func (s *CasbinStore) AssignRole(ctx context.Context, userID, role string) error {
	return s.addEdge(ctx, relationHasRole, userID, role)
}

// RemoveRole removes a HAS_ROLE edge.
func (s *CasbinStore) RemoveRole(ctx context.Context, userID, role string) error {
	return s.removeEdge(ctx, relationHasRole, userID, role)
}

// RolesOf lists the user's roles.
func (s *CasbinStore) RolesOf(ctx context.Context, userID string) ([]string, error) {
	return s.outEdges(ctx, relationHasRole, userID)
}

// AddOwnership records an OWNS edge from user to sensor.
func (s *CasbinStore) AddOwnership(ctx context.Context, userID, sensorID string) error {
	return s.addEdge(ctx, relationOwns, userID, sensorID)
}

// OwnedSensors lists sensors owned by the user.
func (s *CasbinStore) OwnedSensors(ctx context.Context, userID string) ([]string, error) {
	return s.outEdges(ctx, relationOwns, userID)
}

// OwnersOf lists users owning the sensor.
func (s *CasbinStore) OwnersOf(ctx context.Context, sensorID string) ([]string, error) {
	return s.inEdges(ctx, relationOwns, sensorID)
}
