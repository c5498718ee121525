// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package docstore provides the entity store: durable JSON documents
// keyed by collection and ID, backed by BadgerDB.
package docstore

import "context"

// Collections used by the entity store. Keys are "<collection>:<id>".
const (
	CollectionSensors  = "sensors"
	CollectionAlerts   = "alerts"
	CollectionRules    = "rules"
	CollectionUsers    = "users"
	CollectionGroups   = "groups"
	CollectionMessages = "messages"
)

// Store is the entity store contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put stores doc under collection/id, overwriting any existing document.
	Put(ctx context.Context, collection, id string, doc any) error

	// Get unmarshals the document at collection/id into out.
	// Returns faults.NotFoundError when the document does not exist.
	Get(ctx context.Context, collection, id string, out any) error

	// Delete removes the document at collection/id. Deleting an absent
	// document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// List calls fn for every document in the collection. Iteration
	// stops on the first error fn returns.
	List(ctx context.Context, collection string, fn func(id string, data []byte) error) error

	// Close releases the underlying database.
	Close() error
}
