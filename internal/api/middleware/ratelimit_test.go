package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cityscope/cityscope/internal/api/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doFrom(handler http.Handler, method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_AllowsWithinLimit(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.PerMinute(5))(okHandler())

	for i := 0; i < 5; i++ {
		rec := doFrom(handler, http.MethodPut, "/v1/air-quality/coordinate", "192.168.1.1:12345")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
	}
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestLimit: 3,
		WindowLength: 30 * time.Second,
	})(okHandler())

	for i := 0; i < 3; i++ {
		rec := doFrom(handler, http.MethodPost, "/v1/air-quality/refresh", "10.0.0.1:12345")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doFrom(handler, http.MethodPost, "/v1/air-quality/refresh", "10.0.0.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "30", rec.Header().Get("Retry-After"), "retry after the window length")
}

func TestRateLimitByIP_DifferentIPsHaveSeparateLimits(t *testing.T) {
	handler := middleware.RateLimitByIP(middleware.PerMinute(2))(okHandler())

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, doFrom(handler, http.MethodGet, "/v1/scene", "172.16.0.1:12345").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, doFrom(handler, http.MethodGet, "/v1/scene", "172.16.0.1:12345").Code)
	assert.Equal(t, http.StatusOK, doFrom(handler, http.MethodGet, "/v1/scene", "172.16.0.2:12345").Code)
}

func TestRateLimitExceededResponse_Format(t *testing.T) {
	handler := middleware.RequestID(middleware.RateLimitByIP(middleware.PerMinute(1))(okHandler()))

	assert.Equal(t, http.StatusOK, doFrom(handler, http.MethodPut, "/v1/scene/camera", "203.0.113.1:12345").Code)

	rec := doFrom(handler, http.MethodPut, "/v1/scene/camera", "203.0.113.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, "/v1/scene/camera")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 300, middleware.ReadRateLimit.RequestLimit)
	assert.Equal(t, 60, middleware.WriteRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.WriteRateLimit.WindowLength)
	assert.Equal(t, middleware.WriteRateLimit, middleware.PerMinute(60))
}
