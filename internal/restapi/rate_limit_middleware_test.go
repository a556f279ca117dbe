package restapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"departureboard.app/internal/clock"
)

func TestRateLimitRefillsWithClock(t *testing.T) {
	mc := clock.NewMockClock(testNow)
	rl := NewRateLimitMiddleware(2, mc)
	defer rl.Stop()

	assert.True(t, rl.Allow("key:a"))
	assert.True(t, rl.Allow("key:a"))
	assert.False(t, rl.Allow("key:a"), "burst is spent")
	assert.True(t, rl.Allow("key:b"), "buckets are per client")

	mc.Advance(500 * time.Millisecond)
	assert.True(t, rl.Allow("key:a"))
	assert.False(t, rl.Allow("key:a"))
}

func TestRateLimitSweepDropsIdleClients(t *testing.T) {
	mc := clock.NewMockClock(testNow)
	rl := NewRateLimitMiddleware(1, mc)
	defer rl.Stop()

	rl.Allow("key:old")
	mc.Advance(limiterIdleTimeout / 2)
	rl.Allow("key:recent")
	mc.Advance(limiterIdleTimeout/2 + time.Second)

	rl.sweep()
	assert.Equal(t, 1, rl.tracked())
	assert.True(t, rl.Allow("key:old"), "a swept client starts with a full bucket")
}

func TestRateLimitDisabled(t *testing.T) {
	rl := NewRateLimitMiddleware(0, clock.NewMockClock(testNow))
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("key:a"))
	}
	assert.Equal(t, 0, rl.tracked())
}

func TestRateLimitWrapRejects(t *testing.T) {
	rl := NewRateLimitMiddleware(1, clock.NewMockClock(testNow))
	defer rl.Stop()

	var retry int
	h := rl.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		func(w http.ResponseWriter, r *http.Request, retryAfter int) {
			retry = retryAfter
			w.WriteHeader(http.StatusTooManyRequests)
		})

	req := httptest.NewRequest(http.MethodGet, "/api/current-time", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, 1, retry)
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/config?key=abc", nil)
	assert.Equal(t, "key:abc", clientKey(r))

	r = httptest.NewRequest(http.MethodGet, "/api/config", nil)
	r.Header.Set("X-API-Key", "hdr")
	assert.Equal(t, "key:hdr", clientKey(r))

	r = httptest.NewRequest(http.MethodGet, "/api/config", nil)
	r.RemoteAddr = "192.0.2.7:1234"
	assert.Equal(t, "addr:192.0.2.7", clientKey(r))
}
