// Package pairing implements C7: the single-slot pairing coordinator that
// turns a desktop-displayed QR code and a phone's out-of-band submission
// into an approved device registration with a wrapped copy of the
// profile's master key. Grounded on spec.md §4.6's state diagram; the
// ECDH+HKDF handshake follows SAGE-X-project-sage's
// hpke/server.go (generateSrvE2E, CombineSecrets) and
// crypto/keys/x25519.go (DeriveSharedSecret, deriveHKDFKey), generalized
// from HPKE-over-A2A to a direct ECDH handshake over the pairing REST
// endpoint.
package pairing

import "time"

// State is a pairing slot's position in its one-shot lifecycle.
type State int

const (
	// StateNone means no pairing is in progress; Start may be called.
	StateNone State = iota
	StateIssued
	StateAwaitingApproval
	StateApproved
	StateDenied
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateIssued:
		return "issued"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateApproved:
		return "approved"
	case StateDenied:
		return "denied"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// DeviceInfo is what the phone submits alongside its public key.
type DeviceInfo struct {
	DeviceName  string
	DeviceModel string
}

// pendingPairing is the single in-flight slot. Entirely discarded on any
// terminal transition (spec §3: "entire object discarded on terminal
// state").
type pendingPairing struct {
	state State

	token           string
	serverURL       string
	certFingerprint string
	qrData          string

	issuedAt time.Time

	deviceInfo   DeviceInfo
	devicePubKey []byte
	awaitingAt   time.Time
}
