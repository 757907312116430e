package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/relaydesk/relaydesk/internal/metrics"
)

// MetricsMiddleware records request count and latency per matched route.
// The chi route pattern keeps label cardinality bounded: path parameters
// stay placeholders instead of raw IDs.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			endpoint := chi.RouteContext(r.Context()).RoutePattern()
			if endpoint == "" {
				endpoint = r.URL.Path
			}
			metrics.RecordRequest(r.Method, endpoint, strconv.Itoa(ww.Status()), time.Since(start).Seconds())
		})
	}
}
