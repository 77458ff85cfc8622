package lan

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLocalNetwork(t *testing.T) {
	assert.True(t, IsLocalNetwork(net.ParseIP("192.168.1.5")))
	assert.True(t, IsLocalNetwork(net.ParseIP("10.0.0.1")))
	assert.True(t, IsLocalNetwork(net.ParseIP("172.16.0.1")))
	assert.False(t, IsLocalNetwork(net.ParseIP("8.8.8.8")))
	assert.False(t, IsLocalNetwork(net.ParseIP("::1")))
}

func TestDetectMIMEFromBytes(t *testing.T) {
	assert.Equal(t, "image/jpeg", DetectMIMEFromBytes([]byte{0xFF, 0xD8, 0xFF, 0x00}))
	assert.Equal(t, "image/png", DetectMIMEFromBytes([]byte{0x89, 0x50, 0x4E, 0x47}))
	assert.Equal(t, "application/pdf", DetectMIMEFromBytes([]byte("%PDF-1.4")))
	riff := append([]byte("RIFF"), append([]byte{0, 0, 0, 0}, []byte("WEBP")...)...)
	assert.Equal(t, "image/webp", DetectMIMEFromBytes(riff))
	assert.Equal(t, "application/octet-stream", DetectMIMEFromBytes([]byte("random bytes")))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "etcpasswd", SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "report.pdf", SanitizeFilename("report.pdf"))
	assert.Equal(t, "document", SanitizeFilename(""))
	assert.Equal(t, "document", SanitizeFilename("/\\"))

	long := make([]byte, 150)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, SanitizeFilename(string(long)), 100)
}

func TestGeneratePINIsSixDigits(t *testing.T) {
	pin, err := generatePIN()
	assert.NoError(t, err)
	assert.Len(t, pin, 6)
	for _, c := range pin {
		assert.True(t, c >= '0' && c <= '9')
	}
}
