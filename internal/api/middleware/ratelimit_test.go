package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/config"
)

func TestRateLimitBlocksAfterBudget(t *testing.T) {
	cfg := config.RateLimitConfig{PublicPerMinute: 2}
	handler := RateLimit(cfg)(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/speakers", nil)
		req.RemoteAddr = "198.51.100.7:4242"
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/speakers", nil)
	req.RemoteAddr = "198.51.100.7:4242"
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitKeysByClientIP(t *testing.T) {
	cfg := config.RateLimitConfig{PublicPerMinute: 1}
	handler := RateLimit(cfg)(okHandler())

	first := httptest.NewRecorder()
	reqA := httptest.NewRequest("GET", "/api/v1/speakers", nil)
	reqA.RemoteAddr = "198.51.100.1:1000"
	handler.ServeHTTP(first, reqA)
	require.Equal(t, http.StatusOK, first.Code)

	// A different client gets its own bucket.
	second := httptest.NewRecorder()
	reqB := httptest.NewRequest("GET", "/api/v1/speakers", nil)
	reqB.RemoteAddr = "198.51.100.2:1000"
	handler.ServeHTTP(second, reqB)
	require.Equal(t, http.StatusOK, second.Code)
}

func TestRateLimitWritesEnvelope(t *testing.T) {
	cfg := config.RateLimitConfig{PublicPerMinute: 1}
	handler := RateLimit(cfg)(okHandler())

	pass := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/speakers", nil)
	req.RemoteAddr = "198.51.100.9:1000"
	handler.ServeHTTP(pass, req)
	require.Equal(t, http.StatusOK, pass.Code)

	blocked := httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/speakers", nil)
	req.RemoteAddr = "198.51.100.9:1000"
	handler.ServeHTTP(blocked, req)
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	require.Equal(t, "application/json", blocked.Header().Get("Content-Type"))
	require.Contains(t, blocked.Body.String(), respond.CodeRateLimitExceeded)
	require.Contains(t, blocked.Body.String(), `"success":false`)
}

func TestRateLimitLoginTierRetryAfter(t *testing.T) {
	cfg := config.RateLimitConfig{LoginPer15Minutes: 1}
	handler := WithRateLimitTierHandler(TierLogin)(RateLimit(cfg)(okHandler()))

	pass := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	req.RemoteAddr = "198.51.100.3:1000"
	handler.ServeHTTP(pass, req)
	require.Equal(t, http.StatusOK, pass.Code)

	blocked := httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	req.RemoteAddr = "198.51.100.3:1000"
	handler.ServeHTTP(blocked, req)
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	require.Equal(t, "180", blocked.Header().Get("Retry-After"))
}

func TestRateLimitZeroLimitDisablesTier(t *testing.T) {
	cfg := config.RateLimitConfig{AdminPerMinute: 0}
	handler := WithRateLimitTierHandler(TierAdmin)(RateLimit(cfg)(okHandler()))

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/users", nil)
		req.RemoteAddr = "198.51.100.4:1000"
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientKeyIgnoresSpoofedForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.5:9999"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	// No trusted proxies: the direct address wins.
	require.Equal(t, "203.0.113.5", clientKey(req, nil))
}

func TestClientKeyTrustsConfiguredProxy(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.0.2:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.1.0.2")

	require.Equal(t, "203.0.113.5", clientKey(req, []string{"10.1.0.0/16"}))
}
