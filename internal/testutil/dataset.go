// Package testutil builds small, fully known climate datasets for tests.
package testutil

import (
	"io"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"climate-api/pkg/database"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// ActiveStation is the station the fixture treats as most active.
const ActiveStation = "USC00519281"

// Schema mirrors the measurement and station tables of the Hawaii dataset.
const Schema = `
CREATE TABLE station (
  id        INTEGER PRIMARY KEY,
  station   TEXT NOT NULL,
  name      TEXT NOT NULL,
  latitude  REAL,
  longitude REAL,
  elevation REAL
);
CREATE TABLE measurement (
  id      INTEGER PRIMARY KEY,
  station TEXT NOT NULL,
  date    TEXT NOT NULL,
  prcp    REAL,
  tobs    REAL NOT NULL
);
`

// SeedStatements insert the fixture rows. The latest date is 2017-08-23,
// so the one-year window starts at 2016-08-23.
var SeedStatements = []string{
	`INSERT INTO station (id, station, name, latitude, longitude, elevation) VALUES (1, 'USC00519397', 'WAIKIKI 717.2, HI US', 21.2716, -157.8168, 3)`,
	`INSERT INTO station (id, station, name, latitude, longitude, elevation) VALUES (2, 'USC00513117', 'KANEOHE 838.1, HI US', 21.4234, -157.8015, 14.6)`,
	`INSERT INTO station (id, station, name, latitude, longitude, elevation) VALUES (3, 'USC00519281', 'WAIHEE 837.5, HI US', 21.45167, -157.84889, 32.9)`,

	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (1, 'USC00519397', '2010-01-01', 0.08, 65)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (2, 'USC00519281', '2016-08-23', 1.79, 77)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (3, 'USC00519397', '2016-08-23', 0.00, 81)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (4, 'USC00519281', '2016-08-24', 2.15, 77)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (5, 'USC00513117', '2016-08-24', NULL, 79)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (6, 'USC00519281', '2017-07-31', 0.00, 76)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (7, 'USC00519397', '2017-08-01', 0.02, 70)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (8, 'USC00513117', '2017-08-01', NULL, 72.5)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (9, 'USC00519281', '2017-08-01', 0.12, 75)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (10, 'USC00519397', '2017-08-02', 0.00, 73)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (11, 'USC00519281', '2017-08-04', 0.00, 78)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (12, 'USC00519281', '2017-08-23', 0.45, 76)`,
	`INSERT INTO measurement (id, station, date, prcp, tobs) VALUES (13, 'USC00519397', '2017-08-23', 0.00, 81)`,
}

// Deps returns a quiet logger and a collector on a private registry.
func Deps() (*logging.StructuredLogger, *metrics.Collector, *prometheus.Registry) {
	logger := logging.NewStructuredLogger("climate-api-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)

	reg := prometheus.NewRegistry()
	return logger, metrics.NewCollector("climate_api", reg), reg
}

// NewEmptyDataset opens an in-memory sqlite dataset with the schema but no rows.
func NewEmptyDataset(t *testing.T, logger *logging.StructuredLogger, collector *metrics.Collector) *database.DB {
	t.Helper()

	raw, err := sqlx.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open in-memory dataset: %v", err)
	}
	// Every connection to :memory: is a separate database.
	raw.SetMaxOpenConns(1)

	if _, err := raw.Exec(Schema); err != nil {
		raw.Close()
		t.Fatalf("create schema: %v", err)
	}

	db := database.Wrap(raw, &database.Config{Driver: database.DriverSQLite, Path: ":memory:"}, logger, collector)
	t.Cleanup(func() { db.Close() })
	return db
}

// NewDataset opens an in-memory sqlite dataset loaded with SeedStatements.
func NewDataset(t *testing.T, logger *logging.StructuredLogger, collector *metrics.Collector) *database.DB {
	t.Helper()

	db := NewEmptyDataset(t, logger, collector)
	for _, stmt := range SeedStatements {
		if _, err := db.DB().Exec(stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
	return db
}
