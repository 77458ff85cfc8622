package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ktiyab/coheara/internal/coherr"
)

// NonceVerifier rejects requests whose timestamp drifts more than window
// from server time, and remembers each seen nonce for window plus margin
// (spec §4.8 layer 2:
// "retention covers the timestamp window plus a margin").
type NonceVerifier struct {
	window time.Duration
	margin time.Duration

	mu   sync.Mutex
	seen map[string]time.Time // keyed by "<device-or-ip>:<nonce>"

	stop      chan struct{}
	closeOnce sync.Once
}

// NewNonceVerifier builds a verifier with the given ±window (spec
// default ±5 min).
func NewNonceVerifier(window time.Duration) *NonceVerifier {
	if window <= 0 {
		window = 5 * time.Minute
	}
	nv := &NonceVerifier{
		window: window,
		margin: time.Minute,
		seen:   make(map[string]time.Time),
		stop:   make(chan struct{}),
	}
	go nv.pruneLoop()
	return nv
}

func (nv *NonceVerifier) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-nv.stop:
			return
		case <-ticker.C:
			nv.prune()
		}
	}
}

func (nv *NonceVerifier) prune() {
	nv.mu.Lock()
	defer nv.mu.Unlock()
	cutoff := time.Now().Add(-(nv.window + nv.margin))
	for k, t := range nv.seen {
		if t.Before(cutoff) {
			delete(nv.seen, k)
		}
	}
}

// Close stops the background pruning goroutine.
func (nv *NonceVerifier) Close() {
	nv.closeOnce.Do(func() { close(nv.stop) })
}

// check validates the nonce/timestamp pair for scope (device id for
// authenticated routes, client IP for pre-auth routes) and records the
// nonce as seen on success.
func (nv *NonceVerifier) check(scope, nonce, timestamp string) error {
	if nonce == "" || timestamp == "" {
		return coherr.ErrMissingNonce
	}

	unixSecs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return coherr.ErrStaleTimestamp
	}
	ts := time.Unix(unixSecs, 0)
	if d := time.Since(ts); d > nv.window || d < -nv.window {
		return coherr.ErrStaleTimestamp
	}

	key := scope + ":" + nonce
	nv.mu.Lock()
	defer nv.mu.Unlock()
	if _, exists := nv.seen[key]; exists {
		return coherr.ErrReplayedNonce
	}
	nv.seen[key] = time.Now()
	return nil
}

// Middleware wraps next with the nonce/timestamp check. It runs before
// the auth layer (spec §4.8: nonce verifier is layer 2, auth is layer 3),
// so the scope is the bearer token's own bytes when present — stable per
// device across requests without needing the token already validated —
// falling back to client IP for the unprotected pairing route.
func (nv *NonceVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := clientIP(r)
		if tok := bearerToken(r); tok != "" {
			scope = tok
		}
		if err := nv.check(scope, r.Header.Get("X-Request-Nonce"), r.Header.Get("X-Request-Timestamp")); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
