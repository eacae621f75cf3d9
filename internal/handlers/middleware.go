package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// RequestIDHeader carries the request id in and out of the service
const RequestIDHeader = "X-Request-ID"

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Middleware wraps every routed request with request ids, logging, metrics
// and panic recovery
type Middleware struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewMiddleware creates the request middleware
func NewMiddleware(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Middleware {
	return &Middleware{
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Register installs the middleware on router
func (m *Middleware) Register(router *mux.Router) {
	router.Use(m.RequestID, m.Instrument, m.Recover)
}

// RequestID propagates an incoming X-Request-ID or assigns a new one
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// Instrument logs one line per request and records request metrics by route template
func (m *Middleware) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		duration := time.Since(start)
		endpoint := routeTemplate(r)

		m.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
		m.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(rec.status))

		fields := logging.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       endpoint,
			"status":      rec.status,
			"bytes":       rec.bytes,
			"duration_ms": duration.Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}
		if rec.status >= http.StatusInternalServerError {
			m.logger.Warn(r.Context(), "[HTTP_REQUEST] Request failed", fields)
			return
		}
		m.logger.Info(r.Context(), "[HTTP_REQUEST] Request served", fields)
	})
}

// Recover turns a handler panic into a 500 response
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}

				endpoint := routeTemplate(r)
				m.logger.Error(r.Context(), "[HTTP_PANIC] Handler panicked", logging.Fields{
					"path":  r.URL.Path,
					"route": endpoint,
				}, fmt.Errorf("panic: %v", p))
				m.metrics.RecordAPIError("panic", endpoint)

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// routeTemplate returns the matched route's path template so metric labels
// stay bounded for parameterised routes
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
