// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package faults defines the error taxonomy shared by all core components.
//
// Every error that crosses a component boundary is one of the kinds below.
// The transport layer maps kinds to its own status codes; the core only
// exposes the kind, never an HTTP status.
//
// Propagation policy:
//   - ValidationError and NotFoundError surface immediately, no retry.
//   - StoreUnavailableError on the measurement-append and
//     notification-append paths is retried a bounded number of times
//     with backoff before surfacing.
//   - PartialWriteError is never retried automatically: blind retry could
//     double-apply the entity-store half. It names the exact residual
//     state so an operator or reconciliation job can repair it.
//   - DispatchDegradedError means the alert is durably stored but not yet
//     delivered to the notification log. It is surfaced to operators and
//     never blocks the ingest path that produced it.
package faults

import (
	"errors"
	"fmt"
)

// ValidationError indicates malformed input, rejected before any store write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for the given field.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates a referenced entity is absent from the entity store.
type NotFoundError struct {
	Entity string // collection or entity kind, e.g. "sensor"
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// NotFound builds a NotFoundError.
func NotFound(entity, key string) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key}
}

// InvalidTransitionError indicates an illegal alert status change.
// Allowed transitions: active→acknowledged, acknowledged→resolved and
// active→resolved. Everything else, including any reverse move, is illegal.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid alert transition %s -> %s", e.From, e.To)
}

// StoreUnavailableError indicates a timeout or connection failure talking
// to a backing store. Callers treat the operation as failed, not unknown.
type StoreUnavailableError struct {
	Store string // "documents", "timeseries", "relations", "notification_log"
	Err   error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store %s unavailable: %v", e.Store, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as a StoreUnavailableError for the named store.
func Unavailable(store string, err error) *StoreUnavailableError {
	return &StoreUnavailableError{Store: store, Err: err}
}

// PartialWriteError reports a dual-write that left the entity and
// relationship stores inconsistent, or was healed by compensation.
// EntityResidual and RelationResidual name exactly what each store holds
// after the failure so a reconciliation job can repair the state.
type PartialWriteError struct {
	// Op is the logical operation, e.g. "add-group-member".
	Op string

	// RolledBack is true when the compensating rollback of the entity
	// write succeeded and the stores are consistent again. The operation
	// still failed and is reported; it is never a silent success.
	RolledBack bool

	// EntityResidual describes what the entity store holds.
	EntityResidual string

	// RelationResidual describes what the relationship store holds.
	RelationResidual string

	// RelationErr is the relationship-store failure that triggered
	// compensation (or the entity-store failure on the removal path).
	RelationErr error

	// RollbackErr is set when the compensating action itself failed.
	RollbackErr error
}

func (e *PartialWriteError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("partial write in %s (rolled back): %v", e.Op, e.RelationErr)
	}
	return fmt.Sprintf("partial write in %s: entity store: %s; relationship store: %s",
		e.Op, e.EntityResidual, e.RelationResidual)
}

func (e *PartialWriteError) Unwrap() error { return e.RelationErr }

// DispatchDegradedError reports an alert that is durably persisted but
// could not be appended to the notification log within the retry budget.
type DispatchDegradedError struct {
	AlertID  string
	Attempts int
	Err      error
}

func (e *DispatchDegradedError) Error() string {
	return fmt.Sprintf("dispatch degraded: alert %s stored but undelivered after %d attempts: %v",
		e.AlertID, e.Attempts, e.Err)
}

func (e *DispatchDegradedError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalidTransition reports whether err is (or wraps) an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var it *InvalidTransitionError
	return errors.As(err, &it)
}

// IsStoreUnavailable reports whether err is (or wraps) a StoreUnavailableError.
func IsStoreUnavailable(err error) bool {
	var su *StoreUnavailableError
	return errors.As(err, &su)
}

// IsPartialWrite reports whether err is (or wraps) a PartialWriteError.
func IsPartialWrite(err error) bool {
	var pw *PartialWriteError
	return errors.As(err, &pw)
}

// IsDispatchDegraded reports whether err is (or wraps) a DispatchDegradedError.
func IsDispatchDegraded(err error) bool {
	var dd *DispatchDegradedError
	return errors.As(err, &dd)
}
