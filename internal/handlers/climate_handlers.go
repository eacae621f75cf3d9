package handlers

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"climate-api/internal/services"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// Route templates, also used as metric labels
const (
	routeIndex         = "/"
	routePrecipitation = "/api/v1.0/precipitation"
	routeStations      = "/api/v1.0/stations"
	routeTobs          = "/api/v1.0/tobs"
	routeSummaryFrom   = "/api/v1.0/{start_date}"
	routeSummaryRange  = "/api/v1.0/{start_date}/{end_date}"
	routeHealth        = "/health"
	routeOpenAPI       = "/api/docs/openapi.json"
	routeSwaggerUI     = "/api/docs"
)

var indexTemplate = template.Must(template.New("index").Parse(`Welcome to Surf's Up!: Hawaii Climate API<br/>
-----------------------------------------------<br/>
List of available routes:<br/>
/api/v1.0/precipitation<br/>
/api/v1.0/stations<br/>
/api/v1.0/tobs<br/>
<br/>
Search by date (yyyy-mm-dd)<br/>
(Available dates {{.Earliest}} to {{.Reference}})<br/>
-----------------------------------------------<br/>
/api/v1.0/{{.Start}}<br/>
/api/v1.0/{{.Start}}/{{.Reference}}<br/>
`))

// ClimateHandler handles climate API endpoints
type ClimateHandler struct {
	climateService *services.ClimateService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewClimateHandler creates a new climate handler
func NewClimateHandler(
	climateService *services.ClimateService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *ClimateHandler {
	return &ClimateHandler{
		climateService: climateService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Index handles GET /
func (h *ClimateHandler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, h.climateService.Window()); err != nil {
		h.logger.Error(r.Context(), "[API_INDEX_ERROR] Failed to render route listing", logging.Fields{}, err)
	}
}

// GetPrecipitation handles GET /api/v1.0/precipitation
func (h *ClimateHandler) GetPrecipitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.climateService.GetRecentPrecipitation(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_PRECIPITATION_ERROR] Failed to get precipitation", logging.Fields{
			"window_start": h.climateService.Window().Start,
		}, err)
		h.metrics.RecordAPIError("internal_error", routePrecipitation)
		h.sendError(w, r, "failed to retrieve precipitation", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, r, entries, http.StatusOK)
}

// GetStations handles GET /api/v1.0/stations
func (h *ClimateHandler) GetStations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names, err := h.climateService.GetStationNames(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_STATIONS_ERROR] Failed to get stations", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", routeStations)
		h.sendError(w, r, "failed to retrieve stations", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, r, names, http.StatusOK)
}

// GetTemperatureObservations handles GET /api/v1.0/tobs
func (h *ClimateHandler) GetTemperatureObservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	observations, err := h.climateService.GetActiveStationTemperatures(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_TOBS_ERROR] Failed to get temperature observations", logging.Fields{
			"station_id":   h.climateService.ActiveStation(),
			"window_start": h.climateService.Window().Start,
		}, err)
		h.metrics.RecordAPIError("internal_error", routeTobs)
		h.sendError(w, r, "failed to retrieve temperature observations", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, r, observations, http.StatusOK)
}

// GetTemperatureSummary handles GET /api/v1.0/{start_date} and
// GET /api/v1.0/{start_date}/{end_date}. Path dates are not validated.
func (h *ClimateHandler) GetTemperatureSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	start := vars["start_date"]
	var end *string
	endpoint := routeSummaryFrom
	if e, ok := vars["end_date"]; ok {
		end = &e
		endpoint = routeSummaryRange
	}

	summaries, err := h.climateService.GetTemperatureSummaries(ctx, start, end)
	if err != nil {
		fields := logging.Fields{"start_date": start}
		if end != nil {
			fields["end_date"] = *end
		}
		h.logger.Error(ctx, "[API_GET_SUMMARY_ERROR] Failed to get temperature summary", fields, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "failed to retrieve temperature summary", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, r, summaries, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ClimateHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.climateService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Dataset unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{
		"status": status["status"],
	})
	h.sendJSON(w, r, status, code)
}

// sendJSON sends a JSON response. The status line is already written when
// encoding fails, so the failure is only logged and counted.
func (h *ClimateHandler) sendJSON(w http.ResponseWriter, r *http.Request, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		endpoint := routeTemplate(r)
		h.logger.Error(r.Context(), "[API_ENCODE_ERROR] Failed to write response", logging.Fields{
			"route":  endpoint,
			"status": statusCode,
		}, err)
		h.metrics.RecordAPIError("encode_error", endpoint)
	}
}

// sendError sends an error response
func (h *ClimateHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, r, response, statusCode)
}

// RegisterRoutes registers all climate API routes. The fixed /api/v1.0 routes
// are registered before the {start_date} pattern so they are matched first.
func (h *ClimateHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(routeIndex, h.Index).Methods("GET")
	router.HandleFunc(routePrecipitation, h.GetPrecipitation).Methods("GET")
	router.HandleFunc(routeStations, h.GetStations).Methods("GET")
	router.HandleFunc(routeTobs, h.GetTemperatureObservations).Methods("GET")
	router.HandleFunc(routeSummaryFrom, h.GetTemperatureSummary).Methods("GET")
	router.HandleFunc(routeSummaryRange, h.GetTemperatureSummary).Methods("GET")
	router.HandleFunc(routeHealth, h.HealthCheck).Methods("GET")
	router.HandleFunc(routeOpenAPI, h.OpenAPISpec).Methods("GET")
	router.HandleFunc(routeSwaggerUI, SwaggerUI).Methods("GET")
}
