package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/sweetshop-backend/pkg/metrics"
)

func TestMetricsLabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := metrics.NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(Metrics(recorder))
	r.Get("/api/sweets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodGet, "/api/sweets/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	got, err := testutil.GatherAndCount(reg, "sweetshop_http_request_duration_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected a single series for the templated route, got %d", got)
	}
}
