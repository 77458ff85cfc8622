package httpapi

import (
	"net/http"

	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/corestate"
	"github.com/ktiyab/coheara/internal/metrics"
)

// chain composes middleware innermost-first at registration time so the
// outermost-declared layer runs first at request time, matching spec
// §4.8's "applied innermost-first at registration, outermost-first at
// runtime": then wraps from the last-added layer outward, so the first use
// call's middleware ends up outermost and sees the request first.
type chain struct {
	mws []func(http.Handler) http.Handler
}

func (c *chain) use(mw func(http.Handler) http.Handler) *chain {
	c.mws = append(c.mws, mw)
	return c
}

func (c *chain) then(h http.Handler) http.Handler {
	for i := len(c.mws) - 1; i >= 0; i-- {
		h = c.mws[i](h)
	}
	return h
}

// Router builds C10's *http.ServeMux: the unprotected pairing route
// (rate-limited only), the protected subtree (full four-layer stack),
// and the WebSocket upgrade route.
type Router struct {
	State       *corestate.State
	RateLimiter *RateLimiter
	Nonce       *NonceVerifier
	cfg         config.MiddlewareConfig
}

// NewRouter wires the middleware stack and every spec §4.8 route.
func NewRouter(state *corestate.State, cfg config.Config, wsHandler http.Handler) http.Handler {
	rl := NewRateLimiter(cfg.Middleware.RateLimitPerMinute)
	nv := NewNonceVerifier(cfg.Middleware.NonceWindow)

	h := &Handlers{State: state}
	mux := http.NewServeMux()

	// Unprotected: rate limit only (spec §4.8: "Subject to rate limit
	// only").
	unprotected := (&chain{}).use(rl.Middleware).then(http.HandlerFunc(h.pair))
	mux.Handle("POST /api/auth/pair", unprotected)

	// Protected subtree: rate limit -> nonce -> auth -> audit (outermost
	// to innermost at registration, so this IS the runtime order too:
	// rate limit sees the request first).
	protect := func(fn http.HandlerFunc) http.Handler {
		return (&chain{}).
			use(rl.Middleware).
			use(nv.Middleware).
			use(AuthMiddleware(state)).
			use(AuditMiddleware(state)).
			then(fn)
	}

	mux.Handle("GET /api/health", (&chain{}).use(rl.Middleware).then(http.HandlerFunc(h.health)))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /api/home", protect(h.home))
	mux.Handle("GET /api/medications", protect(h.medicationsList))
	mux.Handle("GET /api/medications/{id}", protect(h.medicationDetail))
	mux.Handle("GET /api/labs", protect(h.labsList))
	mux.Handle("GET /api/labs/recent", protect(h.labsRecent))
	mux.Handle("GET /api/labs/history", protect(h.labsHistory))
	mux.Handle("GET /api/alerts", protect(h.criticalAlerts))
	mux.Handle("POST /api/alerts/{id}/dismiss", protect(h.dismissAlert))
	mux.Handle("POST /api/chat/send", protect(h.chatSend))
	mux.Handle("GET /api/chat/suggestions", protect(h.chatSuggestions))
	mux.Handle("GET /api/chat/conversations", protect(h.chatConversations))
	mux.Handle("GET /api/chat/conversations/{id}", protect(h.chatConversationDetail))
	mux.Handle("POST /api/journal", protect(h.journalRecord))
	mux.Handle("GET /api/journal", protect(h.journalHistory))
	mux.Handle("GET /api/timeline", protect(h.timeline))
	mux.Handle("GET /api/appointments", protect(h.appointmentsList))
	mux.Handle("GET /api/appointments/{id}/prep", protect(h.appointmentPrep))
	mux.Handle("POST /api/documents/upload", protect(h.documentsUpload))
	mux.Handle("GET /api/sync", protect(h.sync))
	mux.Handle("POST /api/auth/ws-ticket", protect(h.wsTicket))

	if wsHandler != nil {
		mux.Handle("GET /ws/connect", (&chain{}).use(rl.Middleware).then(wsHandler))
	}

	return mux
}
