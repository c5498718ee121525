// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

package models

import "time"

// SensorType describes which readings a sensor emits.
type SensorType string

const (
	SensorTemperature SensorType = "temperatura"
	SensorHumidity    SensorType = "humedad"
	SensorBoth        SensorType = "temperatura_humedad"
)

// SensorStatus is the operational state of a sensor.
type SensorStatus string

const (
	SensorActive   SensorStatus = "activo"
	SensorInactive SensorStatus = "inactivo"
	SensorFailure  SensorStatus = "falla"
)

// Sensor lives in the entity store. It has no required counterpart in the
// relationship store; an OWNS edge is created only when an owner is named
// at registration time.
type Sensor struct {
	SensorID      string       `json:"sensor_id"`
	Name          string       `json:"nombre" validate:"required,min=3,max=100"`
	Type          SensorType   `json:"tipo" validate:"required,oneof=temperatura humedad temperatura_humedad"`
	Latitude      float64      `json:"latitud" validate:"gte=-90,lte=90"`
	Longitude     float64      `json:"longitud" validate:"gte=-180,lte=180"`
	City          string       `json:"ciudad" validate:"required,min=2"`
	Region        string       `json:"region,omitempty"`
	Country       string       `json:"pais" validate:"required,min=2"`
	Status        SensorStatus `json:"estado"`
	EmissionStart time.Time    `json:"fecha_inicio_emision"`
}
