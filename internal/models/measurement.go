// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package models

import (
	"time"

	"github.com/tomtom215/telemetrus/internal/faults"
)

// Reading bounds enforced before any store write.
const (
	TemperatureMin = -100.0
	TemperatureMax = 100.0
	HumidityMin    = 0.0
	HumidityMax    = 100.0
)

// Measurement is one immutable sensor reading. There is no update or
// delete path; corrections are new rows. Country and City are
// denormalized from the sensor document at ingest time and drive the
// location partition of the time-series store.
type Measurement struct {
	SensorID    string    `json:"sensor_id" validate:"required,uuid4"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature,omitempty" validate:"omitempty,gte=-100,lte=100"`
	Humidity    *float64  `json:"humidity,omitempty" validate:"omitempty,gte=0,lte=100"`
	Country     string    `json:"pais,omitempty"`
	City        string    `json:"ciudad,omitempty"`
}

// DatePartition returns the UTC date bucket used as partition key,
// matching the original store layout (YYYYMMDD).
func (m *Measurement) DatePartition() string {
	return m.Timestamp.UTC().Format("20060102")
}

// Validate checks reading bounds. It must pass before any store write.
func (m *Measurement) Validate() error {
	if m.SensorID == "" {
		return faults.Validation("sensor_id", "required")
	}
	if m.Temperature == nil && m.Humidity == nil {
		return faults.Validation("", "at least one of temperature or humidity is required")
	}
	if m.Temperature != nil && (*m.Temperature < TemperatureMin || *m.Temperature > TemperatureMax) {
		return faults.Validationf("temperature", "%.2f outside [%.0f, %.0f]",
			*m.Temperature, TemperatureMin, TemperatureMax)
	}
	if m.Humidity != nil && (*m.Humidity < HumidityMin || *m.Humidity > HumidityMax) {
		return faults.Validationf("humidity", "%.2f outside [%.0f, %.0f]",
			*m.Humidity, HumidityMin, HumidityMax)
	}
	return nil
}

// Float returns a pointer to v. Convenience for optional readings.
func Float(v float64) *float64 { return &v }
