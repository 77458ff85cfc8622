package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/metrics"
)

// RateLimiter is the outermost middleware layer (spec §4.8 layer 1):
// a per-client-IP token bucket that refills at perMinute/60 tokens per
// second with a burst of perMinute, independent per IP, memory-bounded by
// pruning entries untouched for a minute. It is not a sliding window: a
// client can spend its whole burst at once and then make one request every
// 60/perMinute seconds, so more than perMinute requests can land within a
// single 60-second span.
type RateLimiter struct {
	perMinute int

	mu      sync.Mutex
	clients map[string]*limiterEntry

	stop      chan struct{}
	closeOnce sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter allowing perMinute requests/minute per
// IP, with bursts capped at the same figure (a client that has been idle
// can't burst past one minute's worth of its own budget).
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	rl := &RateLimiter{
		perMinute: perMinute,
		clients:   make(map[string]*limiterEntry),
		stop:      make(chan struct{}),
	}
	go rl.pruneLoop()
	return rl
}

func (rl *RateLimiter) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-time.Minute)
	for ip, e := range rl.clients {
		if e.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// Close stops the background pruning goroutine.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	e, ok := rl.clients[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60.0), rl.perMinute)}
		rl.clients[ip] = e
	}
	e.lastSeen = time.Now()
	limiter := e.limiter
	rl.mu.Unlock()
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware wraps next with the rate limit check.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			metrics.RecordRateLimitRejection()
			writeError(w, coherr.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
