package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/turnstile/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds the per-IP throttle applied in front of the login pipeline.
// It is coarse abuse protection for a single replica; the per-email limit that
// matters for credential guessing lives in the shared store.
type RateLimitConfig struct {
	RequestsPerMinute int
	IPConfig          *pkghttp.IPConfig
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(config.IPConfig.KeyByClientIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests")
		}),
	)
}
