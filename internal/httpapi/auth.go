package httpapi

import (
	"net/http"
	"strings"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/corestate"
)

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// AuthMiddleware is spec §4.8 layer 3: extracts the bearer token, calls
// C6 ValidateAndRotate, injects a DeviceContext on success, and arranges
// for the rotated token (when one was issued) plus a no-store cache header
// on the response.
func AuthMiddleware(state *corestate.State) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, coherr.ErrUnauthorized)
				return
			}

			registry, err := state.Devices()
			if err != nil {
				writeError(w, err)
				return
			}

			deviceID, deviceName, newToken, ok := registry.ValidateAndRotate(token)
			if !ok {
				writeError(w, coherr.ErrUnauthorized)
				return
			}

			sess, err := state.Active()
			if err != nil {
				writeError(w, err)
				return
			}

			if newToken != "" {
				w.Header().Set("X-New-Token", newToken)
			}
			w.Header().Set("Cache-Control", "no-store")

			dc := DeviceContext{DeviceID: deviceID, DeviceName: deviceName, ProfileID: sess.ProfileID().String()}
			next.ServeHTTP(w, withDeviceContext(r, dc))
		})
	}
}
