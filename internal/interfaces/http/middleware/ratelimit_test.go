package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute, func() time.Time { return now })

	ok, remaining := rl.Allow("1.2.3.4")
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = rl.Allow("1.2.3.4")
	assert.False(t, ok)

	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok, "window resets")

	now = now.Add(5 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.clients)
}

func TestRateLimit_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	t.Cleanup(rl.Close)

	router := gin.New()
	router.Use(RateLimit(rl))
	router.GET("/public/receipts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := serve(router, httptest.NewRequest(http.MethodGet, "/public/receipts/1", nil))
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := serve(router, httptest.NewRequest(http.MethodGet, "/public/receipts/1", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "ERR_RATE_LIMITED")
}
