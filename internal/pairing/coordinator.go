package pairing

import (
	"crypto/ecdh"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/cryptoutil"
	"github.com/ktiyab/coheara/internal/devices"
	"github.com/ktiyab/coheara/internal/obslog"
)

func randomDeviceID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// maxSweepInterval bounds how often the background goroutine checks the
// single slot for an expired TTL, rather than arming one-shot timers per
// pairing (there is at most one slot, so a cheap periodic check suffices).
// The actual interval is the smaller of this and a quarter of the
// shortest configured TTL, so short-TTL test/dev configs still expire
// promptly.
const maxSweepInterval = 5 * time.Second

func sweepIntervalFor(cfg config.PairingConfig) time.Duration {
	shortest := cfg.IssuedTTL
	if cfg.ApprovalTTL < shortest {
		shortest = cfg.ApprovalTTL
	}
	if quarter := shortest / 4; quarter > 0 && quarter < maxSweepInterval {
		return quarter
	}
	return maxSweepInterval
}

// Result is the full pairing response produced on Approved (spec §4.6):
// a fresh bearer token, the device's token hash already installed into the
// device registry, the profile name, and the master key wrapped under the
// ECDH+HKDF device-wrapping key. Denied/Expired callers never see a
// Result; they get a sentinel error instead.
type Result struct {
	DeviceID         string
	SessionToken     string
	ProfileName      string
	WrappedMasterKey cryptoutil.EncryptedBlob
}

// StartResult is what Start hands back for the desktop to render as a QR
// code.
type StartResult struct {
	Token           string
	QRData          string
	ServerURL       string
	CertFingerprint string
}

// Coordinator runs the single-slot pairing state machine described in
// spec.md §4.6. One Coordinator is scoped to one unlocked profile/session,
// owned by corestate (C8).
type Coordinator struct {
	cfg config.PairingConfig
	log obslog.Logger

	registry    *devices.Registry
	profileName string

	mu      sync.Mutex
	cond    *sync.Cond
	pending *pendingPairing
	ephemeral *ecdh.PrivateKey

	getMasterKey func() (*cryptoutil.Key, bool)

	stop      chan struct{}
	closeOnce sync.Once
}

// New builds a Coordinator bound to a device registry and a callback for
// fetching the session's current master key (so the coordinator never
// holds key material longer than the handshake needs it).
func New(cfg config.PairingConfig, registry *devices.Registry, profileName string, getMasterKey func() (*cryptoutil.Key, bool), log obslog.Logger) *Coordinator {
	c := &Coordinator{
		cfg:          cfg,
		log:          log,
		registry:     registry,
		profileName:  profileName,
		getMasterKey: getMasterKey,
		stop:         make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	go c.sweepLoop()
	return c
}

// Close stops the background expiry sweep. Idempotent.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Coordinator) sweepLoop() {
	ticker := time.NewTicker(sweepIntervalFor(c.cfg))
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.expireIfStale()
		}
	}
}

func (c *Coordinator) expireIfStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return
	}
	now := time.Now()
	stale := false
	switch c.pending.state {
	case StateIssued:
		stale = now.Sub(c.pending.issuedAt) > c.cfg.IssuedTTL
	case StateAwaitingApproval:
		stale = now.Sub(c.pending.awaitingAt) > c.cfg.ApprovalTTL
	}
	if stale && c.pending.state == StateIssued {
		// No Submit waits on an Issued slot, so it is discarded here.
		c.pending = nil
		c.ephemeral = nil
	} else if stale {
		c.pending.state = StateExpired
		c.cond.Broadcast()
	}
}

// Start issues a fresh one-time token and QR payload, discarding any
// previous slot outright (spec: single-slot, "entire object discarded on
// terminal state" — a fresh Start simply preempts whatever was there).
func (c *Coordinator) Start(serverURL, certFingerprint string) (*StartResult, error) {
	token, err := devices.GenerateToken()
	if err != nil {
		return nil, err
	}
	qrData, err := encodeQRData(serverURL, certFingerprint, token)
	if err != nil {
		return nil, err
	}
	ephemeral, err := generateEphemeralKeypair()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.ephemeral = ephemeral
	c.pending = &pendingPairing{
		state:           StateIssued,
		token:           token,
		serverURL:       serverURL,
		certFingerprint: certFingerprint,
		qrData:          qrData,
		issuedAt:        time.Now(),
	}
	c.mu.Unlock()

	c.log.Info("pairing started", obslog.String("server_url", serverURL))

	return &StartResult{
		Token:           token,
		QRData:          qrData,
		ServerURL:       serverURL,
		CertFingerprint: certFingerprint,
	}, nil
}

func tokensMatch(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Submit is the phone's long-poll call: on a valid token it transitions
// Issued→AwaitingApproval and blocks until the desktop calls
// SignalApproval or Deny, or the approval TTL elapses. A wrong token
// leaves the slot at Issued untouched and returns ErrInvalidToken
// immediately (spec: "wrong token ─▶ ∅ still Issued, error Unauthorized").
func (c *Coordinator) Submit(token string, info DeviceInfo, devicePubKey []byte) (*Result, error) {
	c.mu.Lock()

	if c.pending == nil || c.pending.state != StateIssued {
		c.mu.Unlock()
		return nil, coherr.ErrNoPendingPairing
	}
	if !tokensMatch(c.pending.token, token) {
		c.mu.Unlock()
		return nil, coherr.ErrInvalidToken
	}

	c.pending.deviceInfo = info
	c.pending.devicePubKey = devicePubKey
	c.pending.awaitingAt = time.Now()
	c.pending.state = StateAwaitingApproval
	deadline := c.pending.awaitingAt.Add(c.cfg.ApprovalTTL)

	// The background sweep (sweepInterval) wakes this via cond.Broadcast
	// once the deadline passes, so this loop only re-checks state and the
	// deadline on each wake rather than polling.
	for c.pending != nil && c.pending.state == StateAwaitingApproval {
		if time.Now().After(deadline) {
			c.pending.state = StateExpired
			break
		}
		c.cond.Wait()
	}

	if c.pending == nil {
		c.mu.Unlock()
		return nil, coherr.ErrPairingExpired
	}

	switch c.pending.state {
	case StateDenied:
		c.pending = nil
		c.ephemeral = nil
		c.mu.Unlock()
		return nil, coherr.ErrPairingDenied
	case StateExpired:
		c.pending = nil
		c.ephemeral = nil
		c.mu.Unlock()
		return nil, coherr.ErrPairingExpired
	case StateApproved:
		result, err := c.finishApproval(info, devicePubKey)
		c.pending = nil
		c.ephemeral = nil
		c.mu.Unlock()
		return result, err
	default:
		c.mu.Unlock()
		return nil, coherr.ErrNoPendingPairing
	}
}

// finishApproval runs the ECDH+HKDF handshake and registers the new
// device. Caller holds c.mu.
func (c *Coordinator) finishApproval(info DeviceInfo, devicePubKey []byte) (*Result, error) {
	masterKey, ok := c.getMasterKey()
	if !ok {
		return nil, coherr.ErrNoActiveSession
	}

	wrappingKey, err := deriveWrappingKey(c.ephemeral, devicePubKey, c.pending.token)
	if err != nil {
		return nil, err
	}
	defer wrappingKey.Close()

	wrapped, err := wrapMasterKey(wrappingKey, masterKey)
	if err != nil {
		return nil, err
	}

	sessionToken, err := devices.GenerateToken()
	if err != nil {
		return nil, err
	}

	deviceID, err := randomDeviceID()
	if err != nil {
		return nil, err
	}

	if err := c.registry.RegisterDevice(deviceID, info.DeviceName, info.DeviceModel, devices.HashToken(sessionToken)); err != nil {
		return nil, err
	}

	c.log.Info("device paired", obslog.String("device_id", deviceID), obslog.String("device_name", info.DeviceName))

	return &Result{
		DeviceID:         deviceID,
		SessionToken:     sessionToken,
		ProfileName:      c.profileName,
		WrappedMasterKey: wrapped,
	}, nil
}

// SignalApproval is the desktop UI's approval action. It only takes
// effect while a pairing is AwaitingApproval.
func (c *Coordinator) SignalApproval() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.state != StateAwaitingApproval {
		return coherr.ErrNoPendingPairing
	}
	c.pending.state = StateApproved
	c.cond.Broadcast()
	return nil
}

// Deny is the desktop UI's rejection action.
func (c *Coordinator) Deny() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.state != StateAwaitingApproval {
		return coherr.ErrNoPendingPairing
	}
	c.pending.state = StateDenied
	c.cond.Broadcast()
	return nil
}

// State reports the current slot's state, for desktop UI polling, and the
// pending device info once AwaitingApproval (so the UI can show "Test
// iPhone wants to pair" before approval).
func (c *Coordinator) State() (State, DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return StateNone, DeviceInfo{}
	}
	return c.pending.state, c.pending.deviceInfo
}
