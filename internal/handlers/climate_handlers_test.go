package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"climate-api/internal/repository"
	"climate-api/internal/services"
	"climate-api/internal/testutil"
	"climate-api/pkg/database"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

type testServer struct {
	router  *mux.Router
	db      *database.DB
	metrics *metrics.Collector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger, collector, _ := testutil.Deps()
	db := testutil.NewDataset(t, logger, collector)
	repo := repository.NewClimateRepository(db, logger, collector)

	svc, err := services.NewClimateService(context.Background(), repo, services.ClimateConfig{
		ActiveStation: testutil.ActiveStation,
		WindowDays:    365,
	}, logger, collector)
	if err != nil {
		t.Fatalf("NewClimateService() error = %v", err)
	}

	router := mux.NewRouter()
	NewMiddleware(logger, collector).Register(router)
	NewClimateHandler(svc, logger, collector).RegisterRoutes(router)

	return &testServer{router: router, db: db, metrics: collector}
}

func (s *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestGetPrecipitation(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/api/v1.0/precipitation")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var entries []map[string]*float64
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("got %d entries, want 10", len(entries))
	}

	dates := map[string]int{}
	for i, e := range entries {
		if len(e) != 1 {
			t.Errorf("entry %d has %d keys, want 1", i, len(e))
		}
		for d := range e {
			dates[d]++
		}
	}
	if dates["2016-08-24"] != 2 {
		t.Errorf("2016-08-24 appears %d times, want 2", dates["2016-08-24"])
	}
	if dates["2016-08-23"] != 0 {
		t.Error("response includes 2016-08-23, the window start")
	}

	// The second 2016-08-24 row has NULL prcp.
	if v, ok := entries[1]["2016-08-24"]; !ok || v != nil {
		t.Errorf("entries[1] = %v, want {2016-08-24: null}", entries[1])
	}
}

func TestGetPrecipitation_Idempotent(t *testing.T) {
	srv := newTestServer(t)

	first := srv.get(t, "/api/v1.0/precipitation").Body.Bytes()
	second := srv.get(t, "/api/v1.0/precipitation").Body.Bytes()

	if !bytes.Equal(first, second) {
		t.Errorf("repeated responses differ:\n%s\n%s", first, second)
	}
}

func TestGetStations(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/api/v1.0/stations")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"WAIKIKI 717.2, HI US", "KANEOHE 838.1, HI US", "WAIHEE 837.5, HI US"}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Errorf("names = %v, want %v", names, want)
	}
}

func TestGetTemperatureObservations(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/api/v1.0/tobs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var obs []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &obs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(obs) != 5 {
		t.Fatalf("got %d observations, want 5", len(obs))
	}

	if obs[0]["2016-08-24"] != float64(77) {
		t.Errorf("obs[0][2016-08-24] = %v, want 77", obs[0]["2016-08-24"])
	}

	// Every row belongs to the active station: one date key plus the station key.
	for i, o := range obs {
		if len(o) != 2 {
			t.Errorf("obs[%d] has %d keys, want 2: %v", i, len(o), o)
		}
		if o[testutil.ActiveStation] != "WAIHEE 837.5, HI US" {
			t.Errorf("obs[%d][%s] = %v, want WAIHEE 837.5, HI US", i, testutil.ActiveStation, o[testutil.ActiveStation])
		}
		for _, other := range []string{"USC00519397", "USC00513117"} {
			if _, ok := o[other]; ok {
				t.Errorf("obs[%d] carries station %s", i, other)
			}
		}
	}
}

func TestGetTemperatureSummary(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantDates []string
	}{
		{name: "start only", path: "/api/v1.0/2017-08-04", wantDates: []string{"2017-08-04", "2017-08-23"}},
		{name: "range", path: "/api/v1.0/2017-08-01/2017-08-03", wantDates: []string{"2017-08-01", "2017-08-02"}},
		{name: "start after end", path: "/api/v1.0/2017-08-03/2017-08-01", wantDates: []string{}},
		{name: "past the dataset", path: "/api/v1.0/2099-01-01", wantDates: []string{}},
		{name: "malformed date", path: "/api/v1.0/not-a-date", wantDates: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)

			rec := srv.get(t, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}

			var summaries []map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if summaries == nil {
				t.Fatalf("body = %s, want a JSON array", rec.Body.String())
			}
			if len(summaries) != len(tt.wantDates) {
				t.Fatalf("got %d summaries, want %d", len(summaries), len(tt.wantDates))
			}
			for i, s := range summaries {
				if s["Date"] != tt.wantDates[i] {
					t.Errorf("summary %d Date = %v, want %s", i, s["Date"], tt.wantDates[i])
				}
			}
		})
	}
}

func TestGetTemperatureSummary_Values(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/api/v1.0/2017-08-01/2017-08-03")

	var summaries []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(summaries) == 0 {
		t.Fatal("no summaries returned")
	}

	got := summaries[0]
	want := map[string]interface{}{
		"Date":             "2017-08-01",
		"Low  Temperature": float64(70),
		"Avg. Temperature": 72.5,
		"High Temperature": float64(75),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%q = %v, want %v", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Errorf("summary has keys %v, want exactly %d", got, len(want))
	}
}

func TestGetTemperatureSummary_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/api/v1.0/2017-08-03/2017-08-01")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestIndex(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"/api/v1.0/precipitation",
		"/api/v1.0/stations",
		"/api/v1.0/tobs",
		"Available dates 2010-01-01 to 2017-08-23",
		"/api/v1.0/2016-08-23/2017-08-23",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestDatasetFailure(t *testing.T) {
	srv := newTestServer(t)

	if err := srv.db.DB().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, path := range []string{
		"/api/v1.0/precipitation",
		"/api/v1.0/stations",
		"/api/v1.0/tobs",
		"/api/v1.0/2017-08-01",
		"/api/v1.0/2017-08-01/2017-08-03",
	} {
		rec := srv.get(t, path)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s status = %d, want 500", path, rec.Code)
			continue
		}

		var resp ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Errorf("%s decode error body: %v", path, err)
			continue
		}
		if resp.Code != http.StatusInternalServerError || resp.Error != "Internal Server Error" {
			t.Errorf("%s error body = %+v", path, resp)
		}
		if strings.Contains(resp.Message, "closed") {
			t.Errorf("%s error body leaks driver error: %q", path, resp.Message)
		}
	}

	if got := promtest.ToFloat64(srv.metrics.APIErrorsTotal.WithLabelValues("internal_error", routeTobs)); got != 1 {
		t.Errorf("tobs internal errors = %v, want 1", got)
	}

	rec := srv.get(t, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/health status = %d, want 503", rec.Code)
	}
}

func TestRouteOrdering(t *testing.T) {
	srv := newTestServer(t)

	// "stations" must not be treated as a start date.
	rec := srv.get(t, "/api/v1.0/stations")

	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("/api/v1.0/stations did not return a string array: %v", err)
	}

	if rec := srv.get(t, "/api/v1.0/a/b/c"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rec.Code)
	}
}

func TestDocs(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.get(t, "/api/docs/openapi.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("openapi status = %d, want 200", rec.Code)
	}

	var doc struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, p := range []string{routePrecipitation, routeStations, routeTobs, routeSummaryFrom, routeSummaryRange, routeHealth} {
		if _, ok := doc.Paths[p]; !ok {
			t.Errorf("openapi document missing path %s", p)
		}
	}

	rec = srv.get(t, "/api/docs")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "swagger-ui") {
		t.Errorf("swagger ui status = %d, body missing swagger-ui", rec.Code)
	}
}

// brokenWriter accepts headers but fails every body write.
type brokenWriter struct {
	header http.Header
	status int
}

func (w *brokenWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func (w *brokenWriter) WriteHeader(code int) {
	w.status = code
}

func TestSendJSON_WriteFailureIsLogged(t *testing.T) {
	_, collector, _ := testutil.Deps()
	var logs bytes.Buffer
	logger := logging.NewStructuredLogger("climate-api-test", "test", logging.ErrorLevel)
	logger.SetOutput(&logs)

	db := testutil.NewDataset(t, logger, collector)
	repo := repository.NewClimateRepository(db, logger, collector)
	svc, err := services.NewClimateService(context.Background(), repo, services.ClimateConfig{
		ActiveStation: testutil.ActiveStation,
		WindowDays:    365,
	}, logger, collector)
	if err != nil {
		t.Fatalf("NewClimateService() error = %v", err)
	}

	router := mux.NewRouter()
	NewClimateHandler(svc, logger, collector).RegisterRoutes(router)

	w := &brokenWriter{}
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, routeStations, nil))

	if w.status != http.StatusOK {
		t.Errorf("status = %d, want 200", w.status)
	}
	if !strings.Contains(logs.String(), "[API_ENCODE_ERROR]") {
		t.Errorf("logs = %q, want an [API_ENCODE_ERROR] record", logs.String())
	}
	if !strings.Contains(logs.String(), "connection reset by peer") {
		t.Errorf("logs = %q, want the write error", logs.String())
	}
	if got := promtest.ToFloat64(collector.APIErrorsTotal.WithLabelValues("encode_error", routeStations)); got != 1 {
		t.Errorf("encode errors for %s = %v, want 1", routeStations, got)
	}
}
