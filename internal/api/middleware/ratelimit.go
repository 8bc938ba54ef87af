package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/cityscope/cityscope/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// Default rate limit configurations.
var (
	// ReadRateLimit applies to polling reads from the viewer (300 req/min).
	ReadRateLimit = RateLimitConfig{
		RequestLimit: 300,
		WindowLength: time.Minute,
	}

	// WriteRateLimit applies to endpoints that mutate viewer state or
	// trigger an upstream fetch (60 req/min).
	WriteRateLimit = RateLimitConfig{
		RequestLimit: 60,
		WindowLength: time.Minute,
	}
)

// PerMinute returns a one-minute window allowing n requests.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}

// RateLimitByIP creates a rate limiter middleware keyed by client IP, as
// resolved by chi's RealIP middleware. Rejections carry Retry-After set to the
// window length, since httprate does not expose the exact reset time.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	retryAfter := int(cfg.WindowLength.Seconds())

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			models.NewTooManyRequests(GetRequestID(r.Context()), retryAfter).
				At(r.URL.Path).
				Write(w)
		}),
	)
}
