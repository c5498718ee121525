// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/logging"
)

// writeFault maps a service error to the HTTP response that represents it.
// Partial writes and unknown errors are logged here because the handler has
// already given up on the request.
func (rw *ResponseWriter) writeFault(err error) {
	switch {
	case faults.IsValidation(err):
		var ve *faults.ValidationError
		if errors.As(err, &ve) && ve.Field != "" {
			rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed, err.Error(),
				map[string]string{"field": ve.Field})
			return
		}
		rw.Error(http.StatusBadRequest, ErrCodeValidationFailed, err.Error())

	case faults.IsNotFound(err):
		rw.Error(http.StatusNotFound, ErrCodeNotFound, err.Error())

	case faults.IsInvalidTransition(err):
		rw.Error(http.StatusConflict, ErrCodeConflict, err.Error())

	case faults.IsStoreUnavailable(err):
		var se *faults.StoreUnavailableError
		if errors.As(err, &se) {
			rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error(),
				map[string]string{"store": se.Store})
			return
		}
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error())

	case faults.IsPartialWrite(err):
		var pe *faults.PartialWriteError
		details := interface{}(nil)
		if errors.As(err, &pe) {
			details = map[string]interface{}{
				"operation":         pe.Op,
				"rolled_back":       pe.RolledBack,
				"entity_residual":   pe.EntityResidual,
				"relation_residual": pe.RelationResidual,
			}
		}
		logging.Ctx(rw.r.Context()).Error().Err(err).Msg("partial write surfaced to API")
		rw.ErrorWithDetails(http.StatusInternalServerError, ErrCodePartialWrite, err.Error(), details)

	default:
		logging.Ctx(rw.r.Context()).Error().Err(err).
			Str("path", rw.r.URL.Path).
			Msg("unhandled error in API handler")
		rw.InternalError("internal server error")
	}
}
