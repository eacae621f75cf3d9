package repository

import (
	"context"
	"database/sql"
	"fmt"

	"climate-api/internal/models"
	"climate-api/pkg/database"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// Queries use ? placeholders; database.DB rebinds them for the active driver.
// Dates are ISO text, so plain string comparison is chronological comparison.
const (
	queryDateRange = `
		SELECT MIN(date) AS earliest, MAX(date) AS latest
		FROM measurement
	`

	queryPrecipitationAfter = `
		SELECT date, prcp
		FROM measurement
		WHERE date > ?
		ORDER BY date, id
	`

	queryStationNames = `
		SELECT name
		FROM station
		ORDER BY id
	`

	queryStationTemperaturesAfter = `
		SELECT m.date, m.tobs, m.station, s.name
		FROM measurement m
		JOIN station s ON m.station = s.station
		WHERE m.date > ?
		  AND m.station = ?
		ORDER BY m.date, m.id
	`

	// queryTemperatureSummary is completed by the date bounds in TemperatureFilter.
	queryTemperatureSummary = `
		SELECT date, MIN(tobs) AS low, AVG(tobs) AS avg, MAX(tobs) AS high
		FROM measurement
		WHERE date >= ?
	`
)

// ClimateRepository provides read-only access to the climate dataset
type ClimateRepository interface {
	// Dataset bounds
	GetDateRange(ctx context.Context) (*models.DateRange, error)

	// Measurement queries
	GetPrecipitationAfter(ctx context.Context, after string) ([]*models.PrecipitationEntry, error)
	GetStationTemperaturesAfter(ctx context.Context, stationID, after string) ([]*models.TemperatureObservation, error)
	GetTemperatureSummaries(ctx context.Context, filter TemperatureFilter) ([]*models.TemperatureSummary, error)

	// Station queries
	ListStationNames(ctx context.Context) ([]string, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// TemperatureFilter bounds a temperature summary query. Both dates are
// inclusive and compared as strings; End is optional.
type TemperatureFilter struct {
	Start string
	End   *string
}

// climateRepository implements ClimateRepository
type climateRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewClimateRepository creates a new climate repository
func NewClimateRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ClimateRepository {
	return &climateRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetDateRange returns the earliest and latest measurement dates
func (r *climateRepository) GetDateRange(ctx context.Context) (*models.DateRange, error) {
	var row struct {
		Earliest sql.NullString `db:"earliest"`
		Latest   sql.NullString `db:"latest"`
	}

	if err := r.db.GetContext(ctx, "get_date_range", &row, queryDateRange); err != nil {
		return nil, fmt.Errorf("failed to get date range: %w", err)
	}

	if !row.Latest.Valid {
		return nil, &DatasetError{
			Table:  "measurement",
			Reason: "no measurements found",
		}
	}

	return &models.DateRange{
		Earliest: row.Earliest.String,
		Latest:   row.Latest.String,
	}, nil
}

// GetPrecipitationAfter returns every measurement dated strictly after the
// given date, in date order. Rows sharing a date are all returned.
func (r *climateRepository) GetPrecipitationAfter(ctx context.Context, after string) ([]*models.PrecipitationEntry, error) {
	entries := []*models.PrecipitationEntry{}
	if err := r.db.SelectContext(ctx, "get_precipitation", &entries, queryPrecipitationAfter, after); err != nil {
		return nil, fmt.Errorf("failed to get precipitation: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_PRECIPITATION] Precipitation loaded", logging.Fields{
		"after": after,
		"count": len(entries),
	})

	return entries, nil
}

// GetStationTemperaturesAfter returns one station's observations dated
// strictly after the given date, joined with the station name
func (r *climateRepository) GetStationTemperaturesAfter(ctx context.Context, stationID, after string) ([]*models.TemperatureObservation, error) {
	observations := []*models.TemperatureObservation{}
	if err := r.db.SelectContext(ctx, "get_station_temperatures", &observations, queryStationTemperaturesAfter, after, stationID); err != nil {
		return nil, fmt.Errorf("failed to get station temperatures: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_TOBS] Station temperatures loaded", logging.Fields{
		"station_id": stationID,
		"after":      after,
		"count":      len(observations),
	})

	return observations, nil
}

// GetTemperatureSummaries returns min/avg/max tobs per date within the filter
func (r *climateRepository) GetTemperatureSummaries(ctx context.Context, filter TemperatureFilter) ([]*models.TemperatureSummary, error) {
	query := queryTemperatureSummary
	args := []interface{}{filter.Start}
	queryType := "get_temperature_summary_from"

	if filter.End != nil {
		query += " AND date <= ?"
		args = append(args, *filter.End)
		queryType = "get_temperature_summary_range"
	}

	query += " GROUP BY date ORDER BY date"

	summaries := []*models.TemperatureSummary{}
	if err := r.db.SelectContext(ctx, queryType, &summaries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get temperature summaries: %w", err)
	}

	return summaries, nil
}

// ListStationNames returns the name of every station
func (r *climateRepository) ListStationNames(ctx context.Context) ([]string, error) {
	names := []string{}
	if err := r.db.SelectContext(ctx, "list_station_names", &names, queryStationNames); err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}

	return names, nil
}

// HealthCheck performs a repository health check
func (r *climateRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// DatasetError reports a dataset that cannot back the API, such as one with no measurements
type DatasetError struct {
	Table  string
	Reason string
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("dataset table %s unusable: %s", e.Table, e.Reason)
}

func (e *DatasetError) IsTransient() bool {
	return false
}
