package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/two-step-auth/internal/config"
)

func limiterConfig(capacity int) config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       capacity,
		RefillTokens:   1,
		RefillInterval: time.Minute, // no refill within a test run
		TTL:            10 * time.Minute,
		Prefix:         "rl-test",
	}
}

func limiterFixture(t *testing.T, cfg config.RateLimitConfig) echo.MiddlewareFunc {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTokenBucket(cfg, rdb)
}

func hitLimiter(t *testing.T, mw echo.MiddlewareFunc, ip string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	if ip != "" {
		req.Header.Set(echo.HeaderXRealIP, ip)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/auth/login")

	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	require.NoError(t, handler(c))
	return rec
}

func TestTokenBucketAllowsUpToCapacityThen429(t *testing.T) {
	mw := limiterFixture(t, limiterConfig(3))

	for i := 0; i < 3; i++ {
		rec := hitLimiter(t, mw, "203.0.113.9")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d within capacity", i+1)
	}

	rec := hitLimiter(t, mw, "203.0.113.9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestTokenBucketReportsRemaining(t *testing.T) {
	mw := limiterFixture(t, limiterConfig(5))

	rec := hitLimiter(t, mw, "203.0.113.9")
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))

	rec = hitLimiter(t, mw, "203.0.113.9")
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestTokenBucketIsolatesClients(t *testing.T) {
	mw := limiterFixture(t, limiterConfig(1))

	rec := hitLimiter(t, mw, "203.0.113.9")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = hitLimiter(t, mw, "203.0.113.9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = hitLimiter(t, mw, "198.51.100.4")
	assert.Equal(t, http.StatusOK, rec.Code, "a different client has its own bucket")
}

func TestTokenBucketPassthroughWithoutRedis(t *testing.T) {
	mw := NewTokenBucket(limiterConfig(1), nil)

	for i := 0; i < 5; i++ {
		rec := hitLimiter(t, mw, "203.0.113.9")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestTokenBucketPassthroughWhenDisabled(t *testing.T) {
	cfg := limiterConfig(1)
	cfg.Enabled = false
	mw := limiterFixture(t, cfg)

	for i := 0; i < 5; i++ {
		rec := hitLimiter(t, mw, "203.0.113.9")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestTokenBucketFailsOpenOnRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mw := NewTokenBucket(limiterConfig(1), rdb)

	mr.Close()

	rec := hitLimiter(t, mw, "203.0.113.9")
	assert.Equal(t, http.StatusOK, rec.Code, "a limiter outage must not block logins")
}
