// Package metrics exposes the handful of operational gauges/counters
// spec.md §6 calls out as worth observing without a dedicated dashboard:
// rate-limit rejections, device-token rotations, audit buffer flushes,
// paired-device counts, and per-device WebSocket queue depth. One
// process-wide registry is built at package init, matching the teacher's
// direct github.com/prometheus/client_golang dependency (present in
// go.mod but otherwise unexercised) and AdGuardDNS's per-subsystem
// collector-struct shape.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	rateLimitRejections = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "coheara",
		Subsystem: "http",
		Name:      "rate_limit_rejections_total",
		Help:      "Requests rejected by the per-IP rate limiter (spec §4.8 layer 1).",
	})

	tokenRotations = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "coheara",
		Subsystem: "devices",
		Name:      "token_rotations_total",
		Help:      "Bearer token rotations performed on successful auth (spec §4.6).",
	})

	auditFlushes = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "coheara",
		Subsystem: "audit",
		Name:      "flushes_total",
		Help:      "Times the in-memory audit buffer was flushed to disk (spec §4.4).",
	})

	auditEntriesFlushed = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "coheara",
		Subsystem: "audit",
		Name:      "entries_flushed_total",
		Help:      "Total audit entries written across all flushes.",
	})

	pairedDevices = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "coheara",
		Subsystem: "devices",
		Name:      "paired",
		Help:      "Currently paired (non-revoked) companion devices.",
	})

	wsQueueDepth = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "coheara",
		Subsystem: "ws",
		Name:      "outgoing_queue_depth",
		Help:      "Buffered-but-unsent messages in a device's outgoing WebSocket channel.",
	}, []string{"device_id"})
)

// RecordRateLimitRejection increments the rate-limit rejection counter.
func RecordRateLimitRejection() { rateLimitRejections.Inc() }

// RecordTokenRotation increments the token rotation counter.
func RecordTokenRotation() { tokenRotations.Inc() }

// RecordAuditFlush increments the flush counter and adds entryCount to
// the cumulative entries-flushed counter.
func RecordAuditFlush(entryCount int) {
	auditFlushes.Inc()
	auditEntriesFlushed.Add(float64(entryCount))
}

// SetPairedDeviceCount reports the current number of paired devices.
func SetPairedDeviceCount(n int) { pairedDevices.Set(float64(n)) }

// SetWSQueueDepth reports a device's current outgoing queue depth. Call
// with 0 (or DeleteWSQueueDepth) once the device disconnects so stale
// series don't linger.
func SetWSQueueDepth(deviceID string, depth int) {
	wsQueueDepth.WithLabelValues(deviceID).Set(float64(depth))
}

// DeleteWSQueueDepth removes a disconnected device's queue-depth series.
func DeleteWSQueueDepth(deviceID string) {
	wsQueueDepth.DeleteLabelValues(deviceID)
}

// Handler serves the registry in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
