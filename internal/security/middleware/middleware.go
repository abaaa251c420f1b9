package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/observability/metrics"
	"github.com/yourorg/storecrm/internal/security/ratelimit"
)

type TenantContextKey struct{}

// isPublic marks paths that skip tenant auth: infra endpoints and the webhook
// receivers, which authenticate per store with their own secrets
func isPublic(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics" ||
		strings.HasPrefix(path, "/webhooks/")
}

// APIKeyMiddleware authenticates trigger endpoints with the tenant's API key
// in the X-API-Key header and places the tenant in the request context
func APIKeyMiddleware(tenants domain.TenantRepository, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				http.Error(w, `{"error":"missing api key"}`, http.StatusUnauthorized)
				return
			}

			tenant, err := tenants.GetByAPIKey(r.Context(), apiKey)
			if err != nil {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), TenantContextKey{}, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware throttles authenticated endpoints per tenant
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			tenantID := ""
			if tenant := GetTenantFromContext(r.Context()); tenant != nil {
				tenantID = tenant.ID
			}

			if !limiter.Allow(tenantID) {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MetricsMiddleware records request counts and latency per method and path
// pattern
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		metrics.ObserveHTTPRequest(r.Method, path, strconv.Itoa(sw.status), time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// GetTenantFromContext returns the authenticated tenant, or nil outside the
// API key middleware
func GetTenantFromContext(ctx context.Context) *domain.Tenant {
	if t := ctx.Value(TenantContextKey{}); t != nil {
		return t.(*domain.Tenant)
	}
	return nil
}
