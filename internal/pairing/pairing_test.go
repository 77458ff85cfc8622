package pairing

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/cryptoutil"
	"github.com/ktiyab/coheara/internal/devices"
	"github.com/ktiyab/coheara/internal/obslog"
)

func testCoordinator(t *testing.T, ttl config.PairingConfig) (*Coordinator, *devices.Registry, *cryptoutil.Key) {
	t.Helper()
	raw := make([]byte, cryptoutil.KeySize)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	key, err := cryptoutil.NewKey(raw)
	require.NoError(t, err)

	reg := devices.NewRegistry()
	c := New(ttl, reg, "TestPatient", func() (*cryptoutil.Key, bool) { return key, true }, obslog.NewDefault())
	t.Cleanup(c.Close)
	return c, reg, key
}

func fastTTL() config.PairingConfig {
	return config.PairingConfig{IssuedTTL: 200 * time.Millisecond, ApprovalTTL: 200 * time.Millisecond}
}

func TestHappyPathApproval(t *testing.T) {
	c, reg, _ := testCoordinator(t, config.PairingConfig{IssuedTTL: time.Minute, ApprovalTTL: time.Minute})

	started, err := c.Start("https://192.168.1.42:8443", "SHA256:AB:CD")
	require.NoError(t, err)
	require.NotEmpty(t, started.QRData)

	devicePriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	devicePub := devicePriv.PublicKey().Bytes()

	var result *Result
	var submitErr error
	done := make(chan struct{})
	go func() {
		result, submitErr = c.Submit(started.Token, DeviceInfo{DeviceName: "Test iPhone", DeviceModel: "iPhone 15 Pro"}, devicePub)
		close(done)
	}()

	waitForState(t, c, StateAwaitingApproval)
	require.NoError(t, c.SignalApproval())
	<-done

	require.NoError(t, submitErr)
	require.NotNil(t, result)
	assert.Equal(t, "TestPatient", result.ProfileName)
	assert.NotEmpty(t, result.SessionToken)
	assert.NotEmpty(t, result.WrappedMasterKey)
	assert.Equal(t, 1, reg.DeviceCount())

	state, _ := c.State()
	assert.Equal(t, StateNone, state)
}

func TestWrongTokenLeavesStateIssued(t *testing.T) {
	c, _, _ := testCoordinator(t, config.PairingConfig{IssuedTTL: time.Minute, ApprovalTTL: time.Minute})
	_, err := c.Start("https://host:8443", "SHA256:AA")
	require.NoError(t, err)

	_, err = c.Submit("wrong-token-value", DeviceInfo{}, []byte{1, 2, 3})
	assert.ErrorIs(t, err, coherr.ErrInvalidToken)

	state, _ := c.State()
	assert.Equal(t, StateIssued, state)
}

func TestDenyPath(t *testing.T) {
	c, _, _ := testCoordinator(t, config.PairingConfig{IssuedTTL: time.Minute, ApprovalTTL: time.Minute})
	started, err := c.Start("https://host:8443", "SHA256:AA")
	require.NoError(t, err)

	devicePriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)

	var submitErr error
	done := make(chan struct{})
	go func() {
		_, submitErr = c.Submit(started.Token, DeviceInfo{DeviceName: "Suspicious Device"}, devicePriv.PublicKey().Bytes())
		close(done)
	}()

	waitForState(t, c, StateAwaitingApproval)
	require.NoError(t, c.Deny())
	<-done

	assert.ErrorIs(t, submitErr, coherr.ErrPairingDenied)
}

func TestApprovalTimeoutExpires(t *testing.T) {
	c, _, _ := testCoordinator(t, fastTTL())
	started, err := c.Start("https://host:8443", "SHA256:AA")
	require.NoError(t, err)

	devicePriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = c.Submit(started.Token, DeviceInfo{DeviceName: "Slow Device"}, devicePriv.PublicKey().Bytes())
	assert.ErrorIs(t, err, coherr.ErrPairingExpired)
}

func TestHandshakeRoundTrip(t *testing.T) {
	desktopPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	devicePriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)

	token := "shared-pairing-token"

	desktopKey, err := deriveWrappingKey(desktopPriv, devicePriv.PublicKey().Bytes(), token)
	require.NoError(t, err)
	defer desktopKey.Close()

	// The phone runs the mirrored ECDH (its own private key against the
	// desktop's ephemeral public key) and must land on the same shared
	// secret, hence the same derived key.
	phoneKey, err := deriveWrappingKey(devicePriv, desktopPriv.PublicKey().Bytes(), token)
	require.NoError(t, err)
	defer phoneKey.Close()

	assert.True(t, desktopKey.Equal(phoneKey))
}

func waitForState(t *testing.T, c *Coordinator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, _ := c.State(); s == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v", want)
}
