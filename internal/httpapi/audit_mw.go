package httpapi

import (
	"fmt"
	"net/http"

	"github.com/ktiyab/coheara/internal/audit"
	"github.com/ktiyab/coheara/internal/corestate"
)

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// AuditMiddleware is spec §4.8 layer 4 (innermost): after the handler
// completes, emits an audit event with action "<METHOD> <PATH>", entity
// "status:<code>", sourced from the authenticated device if the auth
// layer ran, otherwise attributed to desktop IPC.
func AuditMiddleware(state *corestate.State) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			entry := audit.Entry{
				Action: r.Method + " " + r.URL.Path,
				Entity: fmt.Sprintf("status:%d", rec.status),
			}
			if dc, ok := DeviceFromContext(r.Context()); ok {
				entry.SourceKind = audit.SourceMobileDevice
				entry.DeviceID = dc.DeviceID
				entry.ProfileID = dc.ProfileID
			} else {
				entry.SourceKind = audit.SourceDesktopIPC
			}
			state.LogAccess(entry)
		})
	}
}
