// Package devices implements C6: the registry of paired mobile
// companions, their bearer tokens, active connection tracking, and the
// per-device outgoing-message queue used by the WebSocket fan-out.
// Grounded on original_source/src-tauri/src/device_manager.rs, which this
// package follows map-for-map (devices/tokens/active/channels/pending
// alerts), adapted from Rust's owned-mutation style to Go's mutex-guarded
// maps in the idiom of SAGE-X-project-sage's session.Manager.
package devices

import "time"

// DefaultMaxDevices bounds how many non-revoked devices may be paired at
// once (spec §4.6).
const DefaultMaxDevices = 3

// InactiveThresholdDays is how long a device may go unseen before it is
// surfaced as an inactive-device warning (spec §4.7).
const InactiveThresholdDays = 30

// MaxPendingAlerts bounds the per-device outgoing-message queue used
// while a device is disconnected (spec §4.10).
const MaxPendingAlerts = 50

// PairedDevice is a registered mobile companion.
type PairedDevice struct {
	DeviceID    string
	DeviceName  string
	DeviceModel string
	PairedAt    time.Time
	LastSeen    time.Time
	IsRevoked   bool
}

// ActiveConnection tracks a currently-connected device's REST/WS activity.
type ActiveConnection struct {
	DeviceID      string
	ConnectedAt   time.Time
	LastActivity  time.Time
	HasWebSocket  bool
	IPAddress     string
}

// Summary is the desktop-facing view of a paired device.
type Summary struct {
	DeviceID      string
	DeviceName    string
	DeviceModel   string
	PairedAt      time.Time
	LastSeen      time.Time
	IsConnected   bool
	HasWebSocket  bool
	DaysInactive  *int64
}

// Count summarizes paired/connected devices for desktop UI display.
type Count struct {
	Paired    int
	Connected int
	Max       int
}

// InactiveWarning flags a device that hasn't connected in a while.
type InactiveWarning struct {
	DeviceID     string
	DeviceName   string
	LastSeen     time.Time
	DaysInactive int64
	Message      string
}

// ReconnectionPolicy is communicated to the phone in the WS Welcome
// message; the phone backs off with
// delay = min(initial*2^attempt, max) + random_jitter (spec §4.10/IMP-020).
type ReconnectionPolicy struct {
	InitialDelayMS uint32
	MaxDelayMS     uint32
	MaxRetries     uint32
	JitterMS       uint32
}

// DefaultReconnectionPolicy matches the phone's documented backoff
// parameters exactly (spec §4.10).
func DefaultReconnectionPolicy() ReconnectionPolicy {
	return ReconnectionPolicy{
		InitialDelayMS: 1_000,
		MaxDelayMS:     30_000,
		MaxRetries:     10,
		JitterMS:       500,
	}
}
