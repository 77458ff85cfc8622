package devices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerTestDevice(t *testing.T, r *Registry, id string) string {
	t.Helper()
	token, err := GenerateToken()
	require.NoError(t, err)
	require.NoError(t, r.RegisterDevice(id, "Test Phone", "iPhone 15", HashToken(token)))
	return token
}

func TestCanPairRespectsMaxDevices(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.CanPair())
	for i := 0; i < DefaultMaxDevices; i++ {
		registerTestDevice(t, r, string(rune('a'+i)))
	}
	assert.False(t, r.CanPair())
	require.Error(t, r.RegisterDevice("overflow", "X", "Y", HashToken("z")))
}

func TestUnpairFreesSlot(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < DefaultMaxDevices; i++ {
		registerTestDevice(t, r, string(rune('a'+i)))
	}
	require.False(t, r.CanPair())
	_, err := r.UnpairDevice("a")
	require.NoError(t, err)
	assert.True(t, r.CanPair())
}

func TestValidateAndRotateSucceedsAndChangesToken(t *testing.T) {
	r := NewRegistry()
	token := registerTestDevice(t, r, "dev-1")

	id, name, newToken, ok := r.ValidateAndRotate(token)
	require.True(t, ok)
	assert.Equal(t, "dev-1", id)
	assert.Equal(t, "Test Phone", name)
	assert.NotEqual(t, token, newToken)
}

func TestPreviousTokenValidDuringGraceThenRejected(t *testing.T) {
	r := NewRegistry()
	token := registerTestDevice(t, r, "dev-1")

	_, _, newToken, ok := r.ValidateAndRotate(token)
	require.True(t, ok)

	// Old token still validates within the grace window.
	_, _, _, ok = r.ValidateAndRotate(token)
	require.True(t, ok)

	// Force the grace window to have elapsed.
	r.mu.Lock()
	r.tokens["dev-1"].previousExp = time.Now().Add(-time.Second)
	r.mu.Unlock()

	_, _, _, ok = r.ValidateAndRotate(token)
	assert.False(t, ok)

	_, _, _, ok = r.ValidateAndRotate(newToken)
	assert.True(t, ok)
}

func TestValidateAndRotateRejectsRevokedDevice(t *testing.T) {
	r := NewRegistry()
	token := registerTestDevice(t, r, "dev-1")
	_, err := r.UnpairDevice("dev-1")
	require.NoError(t, err)

	_, _, _, ok := r.ValidateAndRotate(token)
	assert.False(t, ok)
}

func TestUpdateDeviceMetadataSkipsEmptyValues(t *testing.T) {
	r := NewRegistry()
	registerTestDevice(t, r, "dev-1")

	r.UpdateDeviceMetadata("dev-1", "", "")
	d, ok := r.GetDevice("dev-1")
	require.True(t, ok)
	assert.Equal(t, "Test Phone", d.DeviceName)
	assert.Equal(t, "iPhone 15", d.DeviceModel)

	r.UpdateDeviceMetadata("dev-1", "New Name", "")
	d, _ = r.GetDevice("dev-1")
	assert.Equal(t, "New Name", d.DeviceName)
	assert.Equal(t, "iPhone 15", d.DeviceModel)
}

func TestSendOrQueueQueuesWhenDisconnected(t *testing.T) {
	r := NewRegistry()
	registerTestDevice(t, r, "dev-1")

	r.SendOrQueue("dev-1", "hello")
	assert.Equal(t, 1, r.PendingCount("dev-1"))
}

func TestSendOrQueueDeliversWhenConnected(t *testing.T) {
	r := NewRegistry()
	registerTestDevice(t, r, "dev-1")

	ch := make(chan any, 4)
	r.RegisterSender("dev-1", ch)

	r.SendOrQueue("dev-1", "direct")
	select {
	case msg := <-ch:
		assert.Equal(t, "direct", msg)
	default:
		t.Fatal("expected message delivered directly, found none queued")
	}
	assert.Equal(t, 0, r.PendingCount("dev-1"))
}

func TestQueueOverflowDropsExcess(t *testing.T) {
	r := NewRegistry()
	registerTestDevice(t, r, "dev-1")

	for i := 0; i < MaxPendingAlerts+5; i++ {
		r.SendOrQueue("dev-1", i)
	}
	assert.Equal(t, MaxPendingAlerts, r.PendingCount("dev-1"))
}

func TestFlushPendingDeliversQueuedInOrder(t *testing.T) {
	r := NewRegistry()
	registerTestDevice(t, r, "dev-1")

	for i := 0; i < 3; i++ {
		r.SendOrQueue("dev-1", i)
	}
	require.Equal(t, 3, r.PendingCount("dev-1"))

	ch := make(chan any, 8)
	r.RegisterSender("dev-1", ch)
	r.FlushPending("dev-1")

	assert.Equal(t, 0, r.PendingCount("dev-1"))
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, <-ch)
	}
}

func TestUnpairClearsPendingAlerts(t *testing.T) {
	r := NewRegistry()
	registerTestDevice(t, r, "dev-1")
	r.SendOrQueue("dev-1", "queued")
	require.Equal(t, 1, r.PendingCount("dev-1"))

	_, err := r.UnpairDevice("dev-1")
	require.NoError(t, err)
	assert.Equal(t, 0, r.PendingCount("dev-1"))
}

func TestBroadcastReachesConnectedAndQueuesForOthers(t *testing.T) {
	r := NewRegistry()
	registerTestDevice(t, r, "dev-0")
	registerTestDevice(t, r, "dev-1")

	ch0 := make(chan any, 4)
	r.RegisterSender("dev-0", ch0)

	r.Broadcast("profile-changed")

	select {
	case msg := <-ch0:
		assert.Equal(t, "profile-changed", msg)
	default:
		t.Fatal("expected dev-0 to receive broadcast directly")
	}
	assert.Equal(t, 1, r.PendingCount("dev-1"))
}

func TestInactiveDevicesDetection(t *testing.T) {
	r := NewRegistry()
	registerTestDevice(t, r, "dev-old")

	r.mu.Lock()
	d := r.devices["dev-old"]
	d.LastSeen = time.Now().UTC().Add(-35 * 24 * time.Hour)
	r.devices["dev-old"] = d
	r.mu.Unlock()

	warnings := r.InactiveDevices()
	require.Len(t, warnings, 1)
	assert.Equal(t, "dev-old", warnings[0].DeviceID)
	assert.Equal(t, int64(35), warnings[0].DaysInactive)
}
