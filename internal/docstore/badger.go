// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/metrics"
)

// BadgerStore implements Store on BadgerDB. Suitable for production use
// with persistence across restarts; the in-memory mode serves tests and
// ephemeral deployments.
type BadgerStore struct {
	db *badger.DB
}

// Options configures a BadgerStore.
type Options struct {
	// Path is the on-disk directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory, nothing touches disk.
	InMemory bool
}

// Open opens or creates the entity store.
func Open(opts Options) (*BadgerStore, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, faults.Unavailable("documents", fmt.Errorf("open badger: %w", err))
	}
	return &BadgerStore{db: db}, nil
}

// NewWithDB wraps an existing Badger handle. The caller keeps ownership
// of the handle's lifecycle when using this constructor.
func NewWithDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func key(collection, id string) []byte {
	return []byte(collection + ":" + id)
}

// Put stores doc under collection/id.
func (s *BadgerStore) Put(ctx context.Context, collection, id string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, id, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(collection, id), data)
	})
	if err != nil {
		metrics.DocStoreOps.WithLabelValues("put", collection, "error").Inc()
		return faults.Unavailable("documents", fmt.Errorf("put %s/%s: %w", collection, id, err))
	}
	metrics.DocStoreOps.WithLabelValues("put", collection, "success").Inc()
	return nil
}

// Get unmarshals the document at collection/id into out.
func (s *BadgerStore) Get(ctx context.Context, collection, id string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(collection, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return faults.NotFound(collection, id)
		}
		if err != nil {
			return fmt.Errorf("get %s/%s: %w", collection, id, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})

	switch {
	case err == nil:
		metrics.DocStoreOps.WithLabelValues("get", collection, "success").Inc()
		return nil
	case faults.IsNotFound(err):
		metrics.DocStoreOps.WithLabelValues("get", collection, "not_found").Inc()
		return err
	default:
		metrics.DocStoreOps.WithLabelValues("get", collection, "error").Inc()
		return faults.Unavailable("documents", err)
	}
}

// Delete removes the document at collection/id.
func (s *BadgerStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(key(collection, id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s/%s: %w", collection, id, err)
		}
		return nil
	})
	if err != nil {
		metrics.DocStoreOps.WithLabelValues("delete", collection, "error").Inc()
		return faults.Unavailable("documents", err)
	}
	metrics.DocStoreOps.WithLabelValues("delete", collection, "success").Inc()
	return nil
}

// List iterates all documents in the collection in key order.
func (s *BadgerStore) List(ctx context.Context, collection string, fn func(id string, data []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(collection + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), collection+":")
			err := item.Value(func(val []byte) error {
				// Value bytes are only valid inside the closure, copy
				// before handing them out.
				data := make([]byte, len(val))
				copy(data, val)
				return fn(id, data)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.DocStoreOps.WithLabelValues("list", collection, "error").Inc()
		return err
	}
	metrics.DocStoreOps.WithLabelValues("list", collection, "success").Inc()
	return nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
