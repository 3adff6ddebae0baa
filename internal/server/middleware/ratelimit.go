package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits unauthenticated traffic per client IP to the given number
// of requests per minute, using httprate's sliding window.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitPerClient limits by the API key header when the request carries
// one, falling back to the client IP for browser sessions. Keying on the
// API key means one misbehaving agent exhausts its own budget, not the
// budget of every tenant behind the same NAT.
func RateLimitPerClient(apiKeyHeader string, requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if key := r.Header.Get(apiKeyHeader); key != "" {
				return key, nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
