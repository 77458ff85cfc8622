package devices

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/ktiyab/coheara/internal/metrics"
)

// TokenGrace is the default window during which an immediately-superseded
// bearer token still validates, bridging in-flight requests issued just
// before a rotation (spec §3 TokenEntry, §4.9 scenario 4).
const TokenGrace = 30 * time.Second

// tokenEntry is never persisted; it is rebuilt fresh each time a device
// reconnects and its initial token is (re)issued during pairing (spec §3:
// "Never persisted; rebuilt on each session").
type tokenEntry struct {
	currentHash [32]byte

	hasPrevious  bool
	previousHash [32]byte
	previousExp  time.Time
}

func newTokenEntry(hash [32]byte) *tokenEntry {
	return &tokenEntry{currentHash: hash}
}

// matches reports whether hash equals the current hash, or the previous
// hash while still inside its grace window. Comparisons are constant-time
// (spec §9: "All token/hash/tag comparisons must be constant-time").
func (t *tokenEntry) matches(hash [32]byte) bool {
	if subtle.ConstantTimeCompare(t.currentHash[:], hash[:]) == 1 {
		return true
	}
	if t.hasPrevious && time.Now().Before(t.previousExp) {
		return subtle.ConstantTimeCompare(t.previousHash[:], hash[:]) == 1
	}
	return false
}

// rotate replaces the current hash, retaining the old one as the grace
// fallback for TokenGrace.
func (t *tokenEntry) rotate(newHash [32]byte) {
	t.previousHash = t.currentHash
	t.hasPrevious = true
	t.previousExp = time.Now().Add(TokenGrace)
	t.currentHash = newHash
}

// HashToken returns the SHA-256 hash of a bearer token's bytes.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// GenerateToken produces a fresh high-entropy bearer token (32 random
// bytes, URL-safe base64 encoded).
func GenerateToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ValidateAndRotate hashes token, finds the device whose current-or-grace
// hash matches, rejects revoked devices, issues and installs a fresh
// token, and bumps last-seen. Returns the device id, display name, and
// new token on success. A match on the grace-window previous token
// validates without rotating (the current token stays valid) and returns
// an empty new token.
func (r *Registry) ValidateAndRotate(token string) (deviceID, deviceName, newToken string, ok bool) {
	hash := HashToken(token)

	r.mu.Lock()
	defer r.mu.Unlock()

	var entry *tokenEntry
	for id, e := range r.tokens {
		if e.matches(hash) {
			deviceID = id
			entry = e
			break
		}
	}
	if entry == nil {
		return "", "", "", false
	}

	device, exists := r.devices[deviceID]
	if !exists || device.IsRevoked {
		return "", "", "", false
	}

	if subtle.ConstantTimeCompare(entry.currentHash[:], hash[:]) != 1 {
		device.LastSeen = time.Now().UTC()
		r.devices[deviceID] = device
		return deviceID, device.DeviceName, "", true
	}

	fresh, err := GenerateToken()
	if err != nil {
		return "", "", "", false
	}
	entry.rotate(HashToken(fresh))
	metrics.RecordTokenRotation()

	device.LastSeen = time.Now().UTC()
	r.devices[deviceID] = device

	return deviceID, device.DeviceName, fresh, true
}
