package devices

import (
	"fmt"
	"sync"
	"time"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/metrics"
)

// Sender is a non-blocking outgoing-message channel for one device,
// supplied by the WebSocket hub when a device connects. Registry only
// ever tries a non-blocking send on it; it never owns the channel's
// lifecycle.
type Sender chan<- any

// Registry holds every paired device, its bearer token state, active
// connection tracking, and per-device WS sender/alert-queue pair. It is
// the Go analog of device_manager.rs's DeviceManager, composed into
// internal/corestate behind a single RWMutex per spec §3.
type Registry struct {
	mu sync.RWMutex

	devices       map[string]PairedDevice
	tokens        map[string]*tokenEntry
	active        map[string]ActiveConnection
	senders       map[string]Sender
	pendingAlerts map[string][]any

	maxDevices int
}

// NewRegistry creates an empty Registry with DefaultMaxDevices.
func NewRegistry() *Registry {
	return &Registry{
		devices:       make(map[string]PairedDevice),
		tokens:        make(map[string]*tokenEntry),
		active:        make(map[string]ActiveConnection),
		senders:       make(map[string]Sender),
		pendingAlerts: make(map[string][]any),
		maxDevices:    DefaultMaxDevices,
	}
}

// SetMaxDevices overrides the pairing cap (spec §6 config).
func (r *Registry) SetMaxDevices(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxDevices = n
}

// PersistedDevice is the subset of internal/db.DeviceRow needed to
// restore registry state on profile unlock. Defined here (rather than
// importing internal/db) so devices has no dependency on the storage
// layer; internal/corestate adapts db.DeviceRow to this shape.
type PersistedDevice struct {
	DeviceID    string
	DeviceName  string
	DeviceModel string
	PairedAt    time.Time
	LastSeen    time.Time
	IsRevoked   bool
}

// LoadFromPersisted restores devices (not tokens or active connections,
// which are session-specific) after profile unlock (spec §3: "Persisted
// per-profile in the encrypted DB; loaded into C6 on profile unlock").
func (r *Registry) LoadFromPersisted(rows []PersistedDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		r.devices[row.DeviceID] = PairedDevice{
			DeviceID:    row.DeviceID,
			DeviceName:  row.DeviceName,
			DeviceModel: row.DeviceModel,
			PairedAt:    row.PairedAt,
			LastSeen:    row.LastSeen,
			IsRevoked:   row.IsRevoked,
		}
	}
}

// CanPair reports whether another device may be paired under the cap.
func (r *Registry) CanPair() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeCountLocked() < r.maxDevices
}

func (r *Registry) activeCountLocked() int {
	n := 0
	for _, d := range r.devices {
		if !d.IsRevoked {
			n++
		}
	}
	return n
}

// RegisterDevice pairs a new device with an initial token hash.
func (r *Registry) RegisterDevice(deviceID, name, model string, tokenHash [32]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeCountLocked() >= r.maxDevices {
		return fmt.Errorf("devices: %w (max %d)", coherr.ErrMaxDevicesReached, r.maxDevices)
	}
	now := time.Now().UTC()
	r.devices[deviceID] = PairedDevice{
		DeviceID: deviceID, DeviceName: name, DeviceModel: model,
		PairedAt: now, LastSeen: now,
	}
	r.tokens[deviceID] = newTokenEntry(tokenHash)
	metrics.SetPairedDeviceCount(r.activeCountLocked())
	return nil
}

// UpdateDeviceMetadata overwrites name/model only where the new value is
// non-empty, so a client omitting a header never blanks existing data
// (spec §4.6, CA-01).
func (r *Registry) UpdateDeviceMetadata(deviceID, name, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return
	}
	if name != "" {
		d.DeviceName = name
	}
	if model != "" {
		d.DeviceModel = model
	}
	r.devices[deviceID] = d
}

// UnpairDevice marks a device revoked and tears down its session state,
// returning its Sender (if any) so the caller can push a final Revoked
// message before closing it.
func (r *Registry) UnpairDevice(deviceID string) (Sender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return nil, coherr.ErrDeviceRevoked
	}
	d.IsRevoked = true
	r.devices[deviceID] = d
	delete(r.tokens, deviceID)
	delete(r.active, deviceID)
	sender := r.senders[deviceID]
	delete(r.senders, deviceID)
	delete(r.pendingAlerts, deviceID)
	metrics.SetPairedDeviceCount(r.activeCountLocked())
	return sender, nil
}

// RemoveDevice permanently deletes a device (after revocation).
func (r *Registry) RemoveDevice(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.devices[deviceID]
	delete(r.tokens, deviceID)
	delete(r.active, deviceID)
	delete(r.senders, deviceID)
	delete(r.pendingAlerts, deviceID)
	delete(r.devices, deviceID)
	metrics.SetPairedDeviceCount(r.activeCountLocked())
	return existed
}

// RegisterConnection marks a device as actively connected.
func (r *Registry) RegisterConnection(deviceID, ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.active[deviceID] = ActiveConnection{DeviceID: deviceID, ConnectedAt: now, LastActivity: now, IPAddress: ip}
}

// UnregisterConnection removes a device from active-connection tracking.
func (r *Registry) UnregisterConnection(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, deviceID)
}

// Touch refreshes a device's last-activity and last-seen timestamps.
func (r *Registry) Touch(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if c, ok := r.active[deviceID]; ok {
		c.LastActivity = now
		r.active[deviceID] = c
	}
	if d, ok := r.devices[deviceID]; ok {
		d.LastSeen = now
		r.devices[deviceID] = d
	}
}

// IsConnected reports whether a device currently has an active connection.
func (r *Registry) IsConnected(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[deviceID]
	return ok
}

// IsPaired reports whether a device is registered (revoked or not).
func (r *Registry) IsPaired(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[deviceID]
	return ok
}

// GetDevice returns a copy of a device's record.
func (r *Registry) GetDevice(deviceID string) (PairedDevice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceID]
	return d, ok
}

// DeviceCount returns the number of non-revoked paired devices.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeCountLocked()
}

// ConnectedCount returns the number of currently active connections.
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CountSummary returns the paired/connected/max triple for UI display.
func (r *Registry) CountSummary() Count {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Count{Paired: r.activeCountLocked(), Connected: len(r.active), Max: r.maxDevices}
}

// ListDevices returns non-revoked devices with connection status.
func (r *Registry) ListDevices() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now().UTC()
	out := make([]Summary, 0, len(r.devices))
	for _, d := range r.devices {
		if d.IsRevoked {
			continue
		}
		conn, connected := r.active[d.DeviceID]
		days := int64(now.Sub(d.LastSeen).Hours() / 24)
		var daysInactive *int64
		if days > 0 {
			daysInactive = &days
		}
		out = append(out, Summary{
			DeviceID: d.DeviceID, DeviceName: d.DeviceName, DeviceModel: d.DeviceModel,
			PairedAt: d.PairedAt, LastSeen: d.LastSeen,
			IsConnected: connected, HasWebSocket: conn.HasWebSocket,
			DaysInactive: daysInactive,
		})
	}
	return out
}

// InactiveDevices returns devices unseen for InactiveThresholdDays or more.
func (r *Registry) InactiveDevices() []InactiveWarning {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now().UTC()
	var out []InactiveWarning
	for _, d := range r.devices {
		if d.IsRevoked {
			continue
		}
		days := int64(now.Sub(d.LastSeen).Hours() / 24)
		if days >= InactiveThresholdDays {
			out = append(out, InactiveWarning{
				DeviceID: d.DeviceID, DeviceName: d.DeviceName, LastSeen: d.LastSeen,
				DaysInactive: days,
				Message: fmt.Sprintf("%s hasn't connected in %d days. Consider unpairing for security.",
					d.DeviceName, days),
			})
		}
	}
	return out
}
