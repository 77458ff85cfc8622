package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	RecordRateLimitRejection()
	RecordTokenRotation()
	RecordAuditFlush(3)
	SetPairedDeviceCount(2)
	SetWSQueueDepth("device-1", 5)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "coheara_http_rate_limit_rejections_total")
	assert.Contains(t, body, "coheara_devices_token_rotations_total")
	assert.Contains(t, body, "coheara_audit_flushes_total")
	assert.Contains(t, body, "coheara_devices_paired 2")
	assert.True(t, strings.Contains(body, `coheara_ws_outgoing_queue_depth{device_id="device-1"} 5`))

	DeleteWSQueueDepth("device-1")
	rec2 := httptest.NewRecorder()
	Handler().ServeHTTP(rec2, req)
	assert.NotContains(t, rec2.Body.String(), `device_id="device-1"`)
}
