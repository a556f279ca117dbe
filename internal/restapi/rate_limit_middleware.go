package restapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"departureboard.app/internal/app"
	"departureboard.app/internal/clock"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTimeout   = 10 * time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware gives every client a token bucket of perSecond tokens
// refilled at perSecond per second. Buckets idle for limiterIdleTimeout are
// swept. Token accounting follows the injected clock.
type RateLimitMiddleware struct {
	perSecond int
	clock     clock.Clock

	mu      sync.Mutex
	buckets map[string]*clientBucket

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimitMiddleware starts the sweeper. perSecond <= 0 disables limiting.
func NewRateLimitMiddleware(perSecond int, c clock.Clock) *RateLimitMiddleware {
	rl := &RateLimitMiddleware{
		perSecond: perSecond,
		clock:     c,
		buckets:   make(map[string]*clientBucket),
		stop:      make(chan struct{}),
	}
	if perSecond > 0 {
		go rl.sweepLoop(limiterSweepInterval)
	}
	return rl
}

// Allow takes one token from the bucket of client.
func (rl *RateLimitMiddleware) Allow(client string) bool {
	if rl.perSecond <= 0 {
		return true
	}
	now := rl.clock.Now()

	rl.mu.Lock()
	b, ok := rl.buckets[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(rl.perSecond), rl.perSecond)}
		rl.buckets[client] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Wrap rejects requests over the limit through reject.
func (rl *RateLimitMiddleware) Wrap(next http.Handler, reject func(http.ResponseWriter, *http.Request, int)) http.Handler {
	if rl.perSecond <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perSecond))
			w.Header().Set("X-RateLimit-Remaining", "0")
			// At one or more tokens per second the next one is at most a second away.
			reject(w, r, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sweep drops buckets not used within limiterIdleTimeout.
func (rl *RateLimitMiddleware) sweep() {
	cutoff := rl.clock.Now().Add(-limiterIdleTimeout)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for client, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, client)
		}
	}
}

func (rl *RateLimitMiddleware) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimitMiddleware) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Stop ends the sweeper. Safe to call more than once.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// clientKey is the API key of the request, or its remote address without one.
func clientKey(r *http.Request) string {
	if key := app.RequestAPIKey(r); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
