// Telemetrus - Sensor Telemetry Alerting and Live Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/telemetrus

// Package tsdb provides the time-series store for sensor measurements,
// backed by DuckDB.
//
// Each accepted measurement lands in two tables inside one transaction:
// measurements_by_sensor, ordered for per-sensor range scans, and
// measurements_by_location, partitioned by date for location queries.
// The two views never disagree because the insert is atomic.
package tsdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/telemetrus/internal/config"
	"github.com/tomtom215/telemetrus/internal/faults"
	"github.com/tomtom215/telemetrus/internal/logging"
	"github.com/tomtom215/telemetrus/internal/metrics"
	"github.com/tomtom215/telemetrus/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS measurements_by_sensor (
    sensor_id   VARCHAR NOT NULL,
    ts          TIMESTAMP NOT NULL,
    temperature DOUBLE,
    humidity    DOUBLE,
    pais        VARCHAR,
    ciudad      VARCHAR
);
CREATE INDEX IF NOT EXISTS idx_mbs_sensor_ts ON measurements_by_sensor (sensor_id, ts);

CREATE TABLE IF NOT EXISTS measurements_by_location (
    pais           VARCHAR NOT NULL,
    ciudad         VARCHAR NOT NULL,
    date_partition VARCHAR NOT NULL,
    ts             TIMESTAMP NOT NULL,
    sensor_id      VARCHAR NOT NULL,
    temperature    DOUBLE,
    humidity       DOUBLE
);
CREATE INDEX IF NOT EXISTS idx_mbl_location ON measurements_by_location (pais, ciudad, date_partition);
`

// Stats summarizes readings over a sensor and time range.
type Stats struct {
	SensorID string     `json:"sensor_id"`
	Count    int64      `json:"count"`
	TempMin  *float64   `json:"temp_min,omitempty"`
	TempMax  *float64   `json:"temp_max,omitempty"`
	TempAvg  *float64   `json:"temp_avg,omitempty"`
	HumMin   *float64   `json:"humidity_min,omitempty"`
	HumMax   *float64   `json:"humidity_max,omitempty"`
	HumAvg   *float64   `json:"humidity_avg,omitempty"`
	From     time.Time  `json:"desde"`
	To       time.Time  `json:"hasta"`
}

// LocationStats summarizes readings across every sensor in one city
// over a time range.
type LocationStats struct {
	Country string     `json:"pais"`
	City    string     `json:"ciudad"`
	Count   int64      `json:"count"`
	TempMin *float64   `json:"temp_min,omitempty"`
	TempMax *float64   `json:"temp_max,omitempty"`
	TempAvg *float64   `json:"temp_avg,omitempty"`
	HumMin  *float64   `json:"humidity_min,omitempty"`
	HumMax  *float64   `json:"humidity_max,omitempty"`
	HumAvg  *float64   `json:"humidity_avg,omitempty"`
	From    time.Time  `json:"desde"`
	To      time.Time  `json:"hasta"`
}

// Store wraps the DuckDB connection for measurement writes and queries.
type Store struct {
	conn    *sql.DB
	breaker *gobreaker.CircuitBreaker[any]
}

// Open opens or creates the measurement database and initializes the schema.
func Open(cfg *config.DatabaseConfig) (*Store, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	// Disable extension auto-install/auto-load to prevent hangs in
	// restricted network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// DuckDB is embedded; a small pool avoids write contention.
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(2)

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "tsdb",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Store{conn: conn, breaker: breaker}, nil
}

// Append stores one measurement in both tables atomically.
// The measurement must already carry its location fields.
func (s *Store) Append(ctx context.Context, m *models.Measurement) error {
	if err := m.Validate(); err != nil {
		return err
	}

	start := time.Now()
	_, err := s.breaker.Execute(func() (any, error) {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO measurements_by_sensor (sensor_id, ts, temperature, humidity, pais, ciudad)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.SensorID, m.Timestamp.UTC(), m.Temperature, m.Humidity, m.Country, m.City)
		if err != nil {
			return nil, fmt.Errorf("insert by_sensor: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO measurements_by_location (pais, ciudad, date_partition, ts, sensor_id, temperature, humidity)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.Country, m.City, m.DatePartition(), m.Timestamp.UTC(), m.SensorID, m.Temperature, m.Humidity)
		if err != nil {
			return nil, fmt.Errorf("insert by_location: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return nil, nil
	})
	metrics.RecordDBQuery("append", "measurements", time.Since(start), err)

	if err != nil {
		return faults.Unavailable("timeseries", err)
	}
	return nil
}

// QueryRange returns measurements for one sensor ordered by timestamp
// ascending. A range where from is after to is a validation error.
func (s *Store) QueryRange(ctx context.Context, sensorID string, from, to time.Time) ([]models.Measurement, error) {
	if sensorID == "" {
		return nil, faults.Validation("sensor_id", "required")
	}
	if from.After(to) {
		return nil, faults.Validation("desde", "must not be after hasta")
	}

	start := time.Now()
	result, err := s.breaker.Execute(func() (any, error) {
		rows, err := s.conn.QueryContext(ctx,
			`SELECT sensor_id, ts, temperature, humidity, pais, ciudad
			 FROM measurements_by_sensor
			 WHERE sensor_id = ? AND ts >= ? AND ts <= ?
			 ORDER BY ts ASC`,
			sensorID, from.UTC(), to.UTC())
		if err != nil {
			return nil, fmt.Errorf("query by sensor: %w", err)
		}
		defer func() { _ = rows.Close() }()
		return scanMeasurements(rows)
	})
	metrics.RecordDBQuery("query_range", "measurements_by_sensor", time.Since(start), err)

	if err != nil {
		return nil, faults.Unavailable("timeseries", err)
	}
	out, _ := result.([]models.Measurement)
	return out, nil
}

// QueryByLocation returns measurements for a city over a time range,
// ordered by timestamp ascending. The date_partition bound prunes the
// scan to the UTC days the range touches.
func (s *Store) QueryByLocation(ctx context.Context, country, city string, from, to time.Time) ([]models.Measurement, error) {
	if err := validateLocationRange(country, city, from, to); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.breaker.Execute(func() (any, error) {
		rows, err := s.conn.QueryContext(ctx,
			`SELECT sensor_id, ts, temperature, humidity, pais, ciudad
			 FROM measurements_by_location
			 WHERE pais = ? AND ciudad = ?
			   AND date_partition BETWEEN ? AND ?
			   AND ts >= ? AND ts <= ?
			 ORDER BY ts ASC`,
			country, city,
			from.UTC().Format("20060102"), to.UTC().Format("20060102"),
			from.UTC(), to.UTC())
		if err != nil {
			return nil, fmt.Errorf("query by location: %w", err)
		}
		defer func() { _ = rows.Close() }()
		return scanMeasurements(rows)
	})
	metrics.RecordDBQuery("query_location", "measurements_by_location", time.Since(start), err)

	if err != nil {
		return nil, faults.Unavailable("timeseries", err)
	}
	out, _ := result.([]models.Measurement)
	return out, nil
}

// AggregateByLocation computes min/max/avg readings across every sensor
// in one city over a range. Aggregation runs inside DuckDB.
func (s *Store) AggregateByLocation(ctx context.Context, country, city string, from, to time.Time) (*LocationStats, error) {
	if err := validateLocationRange(country, city, from, to); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.breaker.Execute(func() (any, error) {
		row := s.conn.QueryRowContext(ctx,
			`SELECT COUNT(*),
			        MIN(temperature), MAX(temperature), AVG(temperature),
			        MIN(humidity), MAX(humidity), AVG(humidity)
			 FROM measurements_by_location
			 WHERE pais = ? AND ciudad = ?
			   AND date_partition BETWEEN ? AND ?
			   AND ts >= ? AND ts <= ?`,
			country, city,
			from.UTC().Format("20060102"), to.UTC().Format("20060102"),
			from.UTC(), to.UTC())

		stats := &LocationStats{Country: country, City: city, From: from.UTC(), To: to.UTC()}
		err := row.Scan(&stats.Count,
			&stats.TempMin, &stats.TempMax, &stats.TempAvg,
			&stats.HumMin, &stats.HumMax, &stats.HumAvg)
		if err != nil {
			return nil, fmt.Errorf("aggregate by location: %w", err)
		}
		return stats, nil
	})
	metrics.RecordDBQuery("aggregate_location", "measurements_by_location", time.Since(start), err)

	if err != nil {
		return nil, faults.Unavailable("timeseries", err)
	}
	return result.(*LocationStats), nil
}

func validateLocationRange(country, city string, from, to time.Time) error {
	if country == "" {
		return faults.Validation("pais", "required")
	}
	if city == "" {
		return faults.Validation("ciudad", "required")
	}
	if from.After(to) {
		return faults.Validation("desde", "must not be after hasta")
	}
	return nil
}

// AggregateStats computes min/max/avg readings for one sensor over a range.
// Aggregation runs inside DuckDB, only the summary row crosses the wire.
func (s *Store) AggregateStats(ctx context.Context, sensorID string, from, to time.Time) (*Stats, error) {
	if sensorID == "" {
		return nil, faults.Validation("sensor_id", "required")
	}
	if from.After(to) {
		return nil, faults.Validation("desde", "must not be after hasta")
	}

	start := time.Now()
	result, err := s.breaker.Execute(func() (any, error) {
		row := s.conn.QueryRowContext(ctx,
			`SELECT COUNT(*),
			        MIN(temperature), MAX(temperature), AVG(temperature),
			        MIN(humidity), MAX(humidity), AVG(humidity)
			 FROM measurements_by_sensor
			 WHERE sensor_id = ? AND ts >= ? AND ts <= ?`,
			sensorID, from.UTC(), to.UTC())

		stats := &Stats{SensorID: sensorID, From: from.UTC(), To: to.UTC()}
		err := row.Scan(&stats.Count,
			&stats.TempMin, &stats.TempMax, &stats.TempAvg,
			&stats.HumMin, &stats.HumMax, &stats.HumAvg)
		if err != nil {
			return nil, fmt.Errorf("aggregate stats: %w", err)
		}
		return stats, nil
	})
	metrics.RecordDBQuery("aggregate", "measurements_by_sensor", time.Since(start), err)

	if err != nil {
		return nil, faults.Unavailable("timeseries", err)
	}
	return result.(*Stats), nil
}

// Close checkpoints and closes the database.
func (s *Store) Close() error {
	if _, err := s.conn.Exec("CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("checkpoint before close failed")
	}
	return s.conn.Close()
}

func scanMeasurements(rows *sql.Rows) ([]models.Measurement, error) {
	var out []models.Measurement
	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(&m.SensorID, &m.Timestamp, &m.Temperature, &m.Humidity, &m.Country, &m.City); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
