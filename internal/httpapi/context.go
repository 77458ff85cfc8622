// Package httpapi implements C9 (the middleware stack) and C10 (the
// mobile REST router) described in spec.md §4.8. Grounded on the
// teacher's pkg/agent/transport/http/server.go for the plain
// net/http.HandlerFunc style (the pack carries no router library; the
// teacher's own HTTP transport is bare stdlib, generalized here to
// Go 1.22+'s method-and-path ServeMux patterns instead of hand-rolled
// path parsing) and original_source's api/middleware.rs for the four-
// layer ordering and DeviceContext shape.
package httpapi

import (
	"context"
	"net/http"
)

// deviceContextKey is unexported so only this package's middleware can
// populate the request context.
type deviceContextKey struct{}

// DeviceContext is what the auth layer injects into the request once a
// bearer token validates (spec §4.8 layer 3).
type DeviceContext struct {
	DeviceID   string
	DeviceName string
	ProfileID  string
}

func withDeviceContext(r *http.Request, dc DeviceContext) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), deviceContextKey{}, dc))
}

// DeviceFromContext returns the authenticated device, if the auth
// middleware ran on this request's route.
func DeviceFromContext(ctx context.Context) (DeviceContext, bool) {
	dc, ok := ctx.Value(deviceContextKey{}).(DeviceContext)
	return dc, ok
}
