package mw

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/jmylchreest/prayerline/internal/constants"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// IPRequestsPerMinute limits every request by client IP.
	IPRequestsPerMinute int
	// SessionTurnsPerMinute limits turns against one session, whatever IP
	// they come from. 0 disables the session limit.
	SessionTurnsPerMinute int
}

// DefaultRateLimitConfig returns defaults from the constants package.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		IPRequestsPerMinute:   constants.GlobalIPRateLimitPerMinute,
		SessionTurnsPerMinute: constants.SessionTurnRateLimitPerMinute,
	}
}

// RateLimitByIP returns a middleware that rate limits by IP address.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitBySession limits POSTs against one session id. Requests that do
// not address a session pass through.
func RateLimitBySession(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.SessionTurnsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiter := httprate.NewRateLimiter(
		cfg.SessionTurnsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "session:" + sessionKey(r.URL.Path), nil
		}),
	)

	return func(next http.Handler) http.Handler {
		limited := limiter.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || sessionKey(r.URL.Path) == "" {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// sessionKey extracts the session id from /api/v1/session/{id}/... and
// /api/v1/upsell{1,2}/{id}/... paths.
func sessionKey(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		switch parts[i] {
		case "session", "upsell1", "upsell2":
			if id := parts[i+1]; id != "" && id != "start" {
				return id
			}
			return ""
		}
	}
	return ""
}
