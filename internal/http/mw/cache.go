package mw

import (
	"net/http"
	"strings"
)

// CachePolicy defines caching behavior for a route prefix.
type CachePolicy struct {
	// Prefix is matched against the request path.
	Prefix string
	// CacheControl is the Cache-Control header value to set.
	CacheControl string
}

// CacheConfig holds the cache middleware configuration.
type CacheConfig struct {
	// Policies are matched in order; the first match wins.
	Policies []CachePolicy
	// DefaultPolicy is applied when no policy matches (empty = no header set).
	DefaultPolicy string
}

// DefaultCacheConfig keeps conversation state out of shared caches. Only the
// health and offer catalogue endpoints may be cached.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultPolicy: "no-store",
		Policies: []CachePolicy{
			{Prefix: "/api/v1/health", CacheControl: "public, max-age=30"},
			{Prefix: "/api/v1/offers", CacheControl: "public, max-age=300, stale-while-revalidate=60"},
			{Prefix: "/healthz", CacheControl: "no-store"},
			{Prefix: "/readyz", CacheControl: "no-store"},
		},
	}
}

// Cache returns middleware that sets Cache-Control headers by route prefix.
// Anything other than GET/HEAD is always "no-store".
func Cache(cfg CacheConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
				return
			}

			for _, policy := range cfg.Policies {
				if strings.HasPrefix(r.URL.Path, policy.Prefix) {
					w.Header().Set("Cache-Control", policy.CacheControl)
					next.ServeHTTP(w, r)
					return
				}
			}

			if cfg.DefaultPolicy != "" {
				w.Header().Set("Cache-Control", cfg.DefaultPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}
