package services

import (
	"context"
	"fmt"

	"climate-api/internal/models"
	"climate-api/internal/repository"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// ClimateConfig holds the dataset bindings the service is constructed with
type ClimateConfig struct {
	// ActiveStation is served by the tobs endpoint. It is a fixed id, not
	// recomputed from measurement counts.
	ActiveStation string
	WindowDays    int
}

// ClimateService answers climate queries against a window fixed at construction
type ClimateService struct {
	repo          repository.ClimateRepository
	logger        *logging.StructuredLogger
	metrics       *metrics.Collector
	activeStation string
	window        models.ObservationWindow
}

// NewClimateService reads the dataset date range once and derives the
// lookback window used for the lifetime of the service
func NewClimateService(ctx context.Context, repo repository.ClimateRepository, cfg ClimateConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*ClimateService, error) {
	dates, err := repo.GetDateRange(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset date range: %w", err)
	}

	window, err := models.NewObservationWindow(*dates, cfg.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to compute observation window: %w", err)
	}

	metricsCollector.SetDatasetWindow(window.ReferenceTime(), window.StartTime())

	logger.Info(ctx, "[WINDOW_INIT] Observation window computed", logging.Fields{
		"earliest_date":  window.Earliest,
		"reference_date": window.Reference,
		"window_start":   window.Start,
		"window_days":    cfg.WindowDays,
		"active_station": cfg.ActiveStation,
	})

	return &ClimateService{
		repo:          repo,
		logger:        logger,
		metrics:       metricsCollector,
		activeStation: cfg.ActiveStation,
		window:        window,
	}, nil
}

// Window returns the observation window computed at startup
func (s *ClimateService) Window() models.ObservationWindow {
	return s.window
}

// ActiveStation returns the station id served by GetActiveStationTemperatures
func (s *ClimateService) ActiveStation() string {
	return s.activeStation
}

// GetRecentPrecipitation returns precipitation for every measurement inside the window
func (s *ClimateService) GetRecentPrecipitation(ctx context.Context) ([]*models.PrecipitationEntry, error) {
	return s.repo.GetPrecipitationAfter(ctx, s.window.Start)
}

// GetStationNames returns every station name
func (s *ClimateService) GetStationNames(ctx context.Context) ([]string, error) {
	return s.repo.ListStationNames(ctx)
}

// GetActiveStationTemperatures returns the active station's observations inside the window
func (s *ClimateService) GetActiveStationTemperatures(ctx context.Context) ([]*models.TemperatureObservation, error) {
	return s.repo.GetStationTemperaturesAfter(ctx, s.activeStation, s.window.Start)
}

// GetTemperatureSummaries returns per-date min/avg/max tobs from start onwards,
// bounded by end when it is not nil. Inputs are passed through unvalidated.
func (s *ClimateService) GetTemperatureSummaries(ctx context.Context, start string, end *string) ([]*models.TemperatureSummary, error) {
	return s.repo.GetTemperatureSummaries(ctx, repository.TemperatureFilter{
		Start: start,
		End:   end,
	})
}

// HealthCheck reports whether the dataset is reachable
func (s *ClimateService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
