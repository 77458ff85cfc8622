package pairing

import (
	"encoding/json"

	"github.com/mr-tron/base58"
)

// qrPayload is what gets serialized into the QR code the desktop displays.
// The phone decodes it to learn where to connect and what certificate
// fingerprint to pin before it ever sends a single byte (spec §4.6: "so
// the phone can refuse to connect to anything else").
type qrPayload struct {
	ServerURL       string `json:"server_url"`
	CertFingerprint string `json:"cert_fingerprint"`
	Token           string `json:"token"`
}

// encodeQRData JSON-marshals the payload and base58-encodes it, matching
// the teacher's preference for base58 over base64 in user-facing codes
// (no lookalike characters such as 0/O or I/l).
func encodeQRData(serverURL, certFingerprint, token string) (string, error) {
	raw, err := json.Marshal(qrPayload{
		ServerURL:       serverURL,
		CertFingerprint: certFingerprint,
		Token:           token,
	})
	if err != nil {
		return "", err
	}
	return base58.Encode(raw), nil
}
