package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsRoute is where the status server exposes Handler.
const MetricsRoute = "/metrics"

// unmatchedRoute labels requests no route claimed, so arbitrary paths cannot
// grow label cardinality.
const unmatchedRoute = "unmatched"

// Middleware observes status server requests by chi route pattern, e.g.
// "/v1/progress".
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		ObserveStatusRequest(routeOf(r), rec.code, time.Since(start))
	})
}

func routeOf(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return unmatchedRoute
}

type statusRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.code = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}
