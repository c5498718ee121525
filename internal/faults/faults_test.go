// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package faults

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPredicatesMatchWrappedErrors(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{"validation", Validation("temperature", "out of range"), IsValidation},
		{"not found", NotFound("sensor", "abc"), IsNotFound},
		{"invalid transition", &InvalidTransitionError{From: "resuelta", To: "reconocida"}, IsInvalidTransition},
		{"store unavailable", Unavailable("tsdb", base), IsStoreUnavailable},
		{"partial write", &PartialWriteError{Op: "add-group-member", RelationErr: base}, IsPartialWrite},
		{"dispatch degraded", &DispatchDegradedError{AlertID: "a1", Attempts: 3, Err: base}, IsDispatchDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.pred(tt.err) {
				t.Errorf("predicate did not match direct error %v", tt.err)
			}
			wrapped := fmt.Errorf("ingest: %w", tt.err)
			if !tt.pred(wrapped) {
				t.Errorf("predicate did not match wrapped error %v", wrapped)
			}
			if tt.pred(base) {
				t.Error("predicate matched unrelated error")
			}
		})
	}
}

func TestStoreUnavailableUnwrap(t *testing.T) {
	base := errors.New("dial timeout")
	err := Unavailable("docstore", base)
	if !errors.Is(err, base) {
		t.Error("expected errors.Is to reach wrapped cause")
	}
}

func TestPartialWriteErrorMessageNamesResidualState(t *testing.T) {
	err := &PartialWriteError{
		Op:               "add-group-member",
		EntityResidual:   "group g1 document lists user u1 as member",
		RelationResidual: "no MEMBER_OF edge between u1 and g1",
		RelationErr:      errors.New("graph write failed"),
		RollbackErr:      errors.New("rollback failed"),
	}
	msg := err.Error()
	for _, want := range []string{"add-group-member", "group g1", "MEMBER_OF"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}
