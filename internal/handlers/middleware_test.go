package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"climate-api/internal/testutil"
	"climate-api/pkg/logging"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{name: "generated", incoming: ""},
		{name: "propagated", incoming: "req-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, collector, _ := testutil.Deps()

			var seen string
			router := mux.NewRouter()
			NewMiddleware(logger, collector).Register(router)
			router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
				seen = logging.RequestIDFromContext(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/echo", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got != seen {
				t.Errorf("response id %q != context id %q", got, seen)
			}
			if tt.incoming != "" {
				if got != tt.incoming {
					t.Errorf("request id = %q, want %q", got, tt.incoming)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("generated request id %q is not a uuid: %v", got, err)
			}
		})
	}
}

func TestInstrument_LabelsByRouteTemplate(t *testing.T) {
	srv := newTestServer(t)

	srv.get(t, "/api/v1.0/2017-08-01")
	srv.get(t, "/api/v1.0/2017-08-02")
	srv.get(t, "/api/v1.0/2017-08-01/2017-08-03")

	tests := []struct {
		endpoint string
		want     float64
	}{
		{endpoint: routeSummaryFrom, want: 2},
		{endpoint: routeSummaryRange, want: 1},
	}
	for _, tt := range tests {
		got := promtest.ToFloat64(srv.metrics.APIRequestsTotal.WithLabelValues(tt.endpoint, "GET", "200"))
		if got != tt.want {
			t.Errorf("requests for %s = %v, want %v", tt.endpoint, got, tt.want)
		}
	}

	if n := promtest.CollectAndCount(srv.metrics.APIRequestDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestRecover(t *testing.T) {
	logger, collector, _ := testutil.Deps()

	router := mux.NewRouter()
	NewMiddleware(logger, collector).Register(router)
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if got := promtest.ToFloat64(collector.APIErrorsTotal.WithLabelValues("panic", "/boom")); got != 1 {
		t.Errorf("panic errors = %v, want 1", got)
	}
	if got := promtest.ToFloat64(collector.APIRequestsTotal.WithLabelValues("/boom", "GET", "500")); got != 1 {
		t.Errorf("500 requests = %v, want 1", got)
	}
}
