package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type fakeHTTPRecorder struct {
	mu       sync.Mutex
	statuses []int
	routes   []string
}

func (f *fakeHTTPRecorder) RecordHTTPStatus(statusCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, statusCode)
}

func (f *fakeHTTPRecorder) RecordRequestLatency(method, route string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, method+" "+route)
}

// TestMetricsMiddleware_UsesRoutePattern はパスパラメータではなくルートパターンで記録されることを検証する。
func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(rec))
	r.Get("/api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/products/abc", nil))

	if len(rec.statuses) != 1 || rec.statuses[0] != http.StatusNotFound {
		t.Errorf("statuses = %v, want [404]", rec.statuses)
	}
	if len(rec.routes) != 1 || rec.routes[0] != "GET /api/products/{id}" {
		t.Errorf("routes = %v", rec.routes)
	}
}

func TestMetricsMiddleware_Unmatched(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	h := NewMetricsMiddleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if len(rec.routes) != 1 || rec.routes[0] != "GET unmatched" {
		t.Errorf("routes = %v", rec.routes)
	}
	if rec.statuses[0] != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.statuses[0])
	}
}
