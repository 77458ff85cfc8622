// Package lan implements C12: two short-lived, local-network-only HTTP
// servers used for phone-to-desktop document transfer (PIN-gated upload)
// and mobile companion app distribution (install page/APK/PWA). Grounded
// on original_source/src-tauri/src/wifi_transfer.rs and distribution.rs,
// which this package follows for the PIN/attempt-counter/MIME-sniff/
// filename-sanitization/path-traversal rules, reimplemented on stdlib
// net/http in place of axum since this is a plain HTTP listener with no
// protocol the rest of the repo's stdlib-first transport style doesn't
// already cover.
package lan

import (
	"net"
	"strings"
)

// IsLocalNetwork reports whether ip is an RFC1918 private IPv4 address.
// IPv6 is treated as non-local, matching the original's IPv4-only scope.
func IsLocalNetwork(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return v4.IsPrivate()
}

// DetectMIMEFromBytes sniffs the upload's real type from its magic bytes,
// ignoring any client-supplied Content-Type header (spec §4.12: "never
// trust the client's declared content type").
func DetectMIMEFromBytes(b []byte) string {
	switch {
	case len(b) >= 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return "image/jpeg"
	case len(b) >= 4 && b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47:
		return "image/png"
	case len(b) >= 4 && string(b[:4]) == "%PDF":
		return "application/pdf"
	case len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return "image/webp"
	case len(b) >= 12 && string(b[4:8]) == "ftyp":
		brand := string(b[8:12])
		if strings.HasPrefix(brand, "heic") || strings.HasPrefix(brand, "heix") || strings.HasPrefix(brand, "mif1") {
			return "image/heic"
		}
		return "application/octet-stream"
	default:
		return "application/octet-stream"
	}
}

// AllowedUploadMIMETypes are the only types handleUpload accepts.
var AllowedUploadMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/heic":      true,
	"application/pdf": true,
}

// SanitizeFilename strips path separators and unsafe characters, removes
// ".." sequences, and truncates to 100 characters (spec §4.12).
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == 0:
			continue
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	sanitized := strings.ReplaceAll(b.String(), "..", "")
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	if sanitized == "" {
		return "document"
	}
	return sanitized
}
