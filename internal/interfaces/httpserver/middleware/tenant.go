package middleware

import (
	"context"
	"net/http"
	"strings"
)

type tenantIDKey struct{}

// TenantMiddleware extracts the caller's tenant scope from the X-Tenant-ID
// header. Handlers reject requests that resolve to no tenant; there is no
// default-tenant fallback.
func TenantMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-ID"))
			if tenantID != "" {
				ctx := context.WithValue(r.Context(), tenantIDKey{}, tenantID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetTenantID extracts the tenant ID from context.
func GetTenantID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(tenantIDKey{}).(string); ok {
		return id
	}
	return ""
}
