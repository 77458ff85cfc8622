package lan

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/obslog"
)

func newTestDistributionServer(t *testing.T, pwaDir string) *DistributionServer {
	t.Helper()
	cfg := config.LANConfig{DistributionRatePerMin: 60}
	return NewDistributionServer(cfg, pwaDir, "", "0.1.0", obslog.New(io.Discard, obslog.ErrorLevel))
}

func TestDistributionGateRejectsNonPrivateIP(t *testing.T) {
	s := newTestDistributionServer(t, "")
	handler := s.gate(s.serveInstallPage)

	req := httptest.NewRequest(http.MethodGet, "/install", nil)
	req.RemoteAddr = "8.8.8.8:54321"
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDistributionGateAllowsLocalNetwork(t *testing.T) {
	s := newTestDistributionServer(t, "")
	handler := s.gate(s.serveInstallPage)

	req := httptest.NewRequest(http.MethodGet, "/install", nil)
	req.RemoteAddr = "192.168.1.20:54321"
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.RequestCount())
}

func TestDistributionGateEnforcesRateLimit(t *testing.T) {
	cfg := config.LANConfig{DistributionRatePerMin: 2}
	s := NewDistributionServer(cfg, "", "", "0.1.0", obslog.New(io.Discard, obslog.ErrorLevel))
	handler := s.gate(s.serveInstallPage)

	var lastCode int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/install", nil)
		req.RemoteAddr = "192.168.1.20:54321"
		rec := httptest.NewRecorder()
		handler(rec, req)
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

func TestServePWARejectsPathTraversal(t *testing.T) {
	pwaDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pwaDir, "index.html"), []byte("<html></html>"), 0o600))

	secretDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(secretDir, "secret.txt"), []byte("top secret"), 0o600))

	s := newTestDistributionServer(t, pwaDir)

	req := httptest.NewRequest(http.MethodGet, "/app/../../"+filepath.Base(secretDir)+"/secret.txt", nil)
	req.RemoteAddr = "192.168.1.20:54321"
	req.URL.Path = "/app/../../" + filepath.Base(secretDir) + "/secret.txt"
	rec := httptest.NewRecorder()
	s.servePWA(rec, req)

	body := rec.Body.String()
	assert.NotContains(t, body, "top secret")
}

func TestServePWAServesIndexForKnownFile(t *testing.T) {
	pwaDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pwaDir, "index.html"), []byte("<html>app</html>"), 0o600))

	s := newTestDistributionServer(t, pwaDir)
	req := httptest.NewRequest(http.MethodGet, "/app/index.html", nil)
	req.RemoteAddr = "192.168.1.20:54321"
	rec := httptest.NewRecorder()
	s.servePWA(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>app</html>", rec.Body.String())
}

func TestServeAPKNotAvailableWhenUnset(t *testing.T) {
	s := newTestDistributionServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/install/android/download", nil)
	rec := httptest.NewRecorder()
	s.serveAPK(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
