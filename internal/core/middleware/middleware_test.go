package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/squadrats-grid/internal/core/observability"
	mylog "github.com/mohammed-shakir/squadrats-grid/internal/logger"
)

func TestLogging_RequestID(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var seen string
	h := Logging(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mylog.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/grid", nil))
	if seen == "" || rr.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("request id: ctx=%q header=%q", seen, rr.Header().Get(HeaderRequestID))
	}
	if !strings.Contains(buf.String(), "status=418") {
		t.Fatalf("log line missing status: %s", buf.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/grid", nil)
	req.Header.Set(HeaderRequestID, "abc123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc123" || rr.Header().Get(HeaderRequestID) != "abc123" {
		t.Fatalf("incoming id not propagated: %q", seen)
	}
}

func TestRecover(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recover(l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/coverage", nil))
	if rr.Code != http.StatusNoContent || called {
		t.Fatalf("preflight status=%d called=%v", rr.Code, called)
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("POST not allowed: %q", rr.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestMetrics_RoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	observability.Init(reg, true)
	t.Cleanup(func() { observability.Init(nil, false) })

	r := chi.NewRouter()
	r.Use(Metrics())
	r.Get("/grid", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadRequest) })

	for _, target := range []string{"/grid?region=PL-22", "/grid?region=PL-28", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	want := `
# HELP http_requests_total Total number of HTTP requests.
# TYPE http_requests_total counter
http_requests_total{method="GET",route="/grid",status="400"} 2
http_requests_total{method="GET",route="unmatched",status="404"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "http_requests_total"); err != nil {
		t.Fatalf("metrics mismatch: %v", err)
	}
}
