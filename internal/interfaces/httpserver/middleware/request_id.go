package middleware

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// RequestLogger binds a request-scoped zerolog logger carrying the request ID
// assigned by chi's RequestID middleware, and echoes the ID to the caller.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := chimw.GetReqID(r.Context())
			logger := log.With().Str("request_id", requestID).Logger()
			ctx := logger.WithContext(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return chimw.GetReqID(ctx)
}
