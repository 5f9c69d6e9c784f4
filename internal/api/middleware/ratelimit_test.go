package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestIPRateLimiter_ReturnsSameLimiterForIP(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 1)

	a := limiter.GetLimiter("10.0.0.1")
	b := limiter.GetLimiter("10.0.0.1")
	c := limiter.GetLimiter("10.0.0.2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestIPRateLimiter_CleanupResetsEntries(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 1)

	a := limiter.GetLimiter("10.0.0.1")
	limiter.CleanupOldEntries()
	b := limiter.GetLimiter("10.0.0.1")

	assert.NotSame(t, a, b)
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimiter(10, 5, nil)
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_BlocksBeyondBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimiter(0.001, 1, nil)
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	assert.NoError(t, handler(c))

	req = httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)

	err := handler(c)
	assert.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)
	assert.Equal(t, "60", c.Response().Header().Get("Retry-After"))
}
