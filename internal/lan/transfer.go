package lan

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/obslog"
)

// MaxFailedPINAttempts locks out a client IP after this many wrong PINs
// (spec §4.12).
const MaxFailedPINAttempts = 5

// UploadResult is one successfully staged file.
type UploadResult struct {
	Filename    string
	SizeBytes   int64
	MimeType    string
	ReceivedAt  time.Time
}

// TransferSession is the desktop-facing snapshot of a running transfer
// server, returned over IPC so the UI can render the PIN and QR code.
type TransferSession struct {
	SessionID   string
	ServerAddr  string
	URL         string
	PIN         string
	StartedAt   time.Time
	MaxUploads  int
}

// TransferServer is a short-lived, PIN-gated HTTP upload endpoint bound
// to the local network. One instance serves a single transfer session;
// Run exits on inactivity timeout or context cancellation (wired through
// corestate.ServerSlot per spec §4.12/§5).
type TransferServer struct {
	cfg        config.LANConfig
	stagingDir string
	log        obslog.Logger

	Session TransferSession

	mu             sync.Mutex
	uploadCount    int
	lastActivity   time.Time
	failedAttempts map[string]int
	received       []UploadResult
}

// NewTransferServer mints a PIN and session ID; binding and serving
// happen in Run so the slot owns the listener's lifetime.
func NewTransferServer(cfg config.LANConfig, stagingDir string, log obslog.Logger) (*TransferServer, error) {
	pin, err := generatePIN()
	if err != nil {
		return nil, err
	}
	return &TransferServer{
		cfg:        cfg,
		stagingDir: stagingDir,
		log:        log,
		Session: TransferSession{
			SessionID:  uuid.NewString(),
			PIN:        pin,
			StartedAt:  time.Now(),
			MaxUploads: cfg.TransferMaxUploads,
		},
		lastActivity:   time.Now(),
		failedAttempts: make(map[string]int),
	}, nil
}

func generatePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("lan: generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Run binds an ephemeral port on the host's local network address, serves
// uploads until ctx is canceled or the configured idle timeout elapses,
// and satisfies corestate.Server.
func (s *TransferServer) Run(ctx context.Context) error {
	localIP, err := localNetworkIP()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(localIP.String(), "0"))
	if err != nil {
		return fmt.Errorf("lan: bind transfer server: %w", err)
	}
	addr := listener.Addr().(*net.TCPAddr)

	s.Session.ServerAddr = addr.String()
	s.Session.URL = fmt.Sprintf("http://%s/upload", addr.String())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /upload", s.serveUploadPage)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })

	srv := &http.Server{Handler: mux}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(listener) }()

	idleTimeout := s.cfg.TransferIdle
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			srv.Close()
			return nil
		case err := <-serveErr:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			s.mu.Unlock()
			if idle > idleTimeout {
				s.log.Info("transfer server auto-shutdown: inactivity timeout")
				srv.Close()
				return nil
			}
		}
	}
}

func localNetworkIP() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("lan: list interfaces: %w", err)
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if IsLocalNetwork(ipNet.IP) {
			return ipNet.IP, nil
		}
	}
	return nil, fmt.Errorf("lan: no local network interface found")
}

func (s *TransferServer) serveUploadPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(uploadPageHTML))
}

func (s *TransferServer) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *TransferServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.touch()
	clientIP, _, _ := net.SplitHostPort(r.RemoteAddr)

	s.mu.Lock()
	locked := s.failedAttempts[clientIP] >= MaxFailedPINAttempts
	overLimit := s.uploadCount >= s.cfg.TransferMaxUploads
	s.mu.Unlock()

	if locked {
		writeJSONError(w, http.StatusForbidden, "too many incorrect PINs; please restart the transfer on your computer")
		return
	}
	if overLimit {
		writeJSONError(w, http.StatusTooManyRequests, "upload limit reached for this session")
		return
	}

	if err := r.ParseMultipartForm(s.cfg.TransferMaxUploadBytes + (1 << 20)); err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to parse upload")
		return
	}

	pinProvided := r.FormValue("pin")
	if pinProvided != s.Session.PIN {
		s.mu.Lock()
		s.failedAttempts[clientIP]++
		s.mu.Unlock()
		writeJSONError(w, http.StatusUnauthorized, "incorrect PIN; check the number shown on your computer")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	if header.Size > s.cfg.TransferMaxUploadBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file too large; maximum %dMB", s.cfg.TransferMaxUploadBytes/(1024*1024)))
		return
	}

	bytes, err := io.ReadAll(io.LimitReader(file, s.cfg.TransferMaxUploadBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read file data")
		return
	}

	mimeType := DetectMIMEFromBytes(bytes)
	if !AllowedUploadMIMETypes[mimeType] {
		writeJSONError(w, http.StatusUnsupportedMediaType, "file type not supported; please send an image or PDF")
		return
	}

	safeName := SanitizeFilename(header.Filename)
	if err := os.MkdirAll(s.stagingDir, 0o700); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	stagedPath := filepath.Join(s.stagingDir, fmt.Sprintf("%s_%s", uuid.NewString(), safeName))
	if err := os.WriteFile(stagedPath, bytes, 0o600); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	result := UploadResult{Filename: safeName, SizeBytes: int64(len(bytes)), MimeType: mimeType, ReceivedAt: time.Now()}
	s.mu.Lock()
	s.uploadCount++
	s.received = append(s.received, result)
	s.mu.Unlock()

	s.log.Info("file received via lan transfer", obslog.String("filename", safeName), obslog.Int("size", len(bytes)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "document received! " + safeName})
}

// Status reports the current upload count and received files.
func (s *TransferServer) Status() (int, []UploadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadCount, append([]UploadResult(nil), s.received...)
}

const uploadPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Coheara — Send Documents</title>
</head>
<body>
<h1>Send a document</h1>
<form method="post" enctype="multipart/form-data">
<input type="text" name="pin" placeholder="6-digit PIN" maxlength="6" required>
<input type="file" name="file" required>
<button type="submit">Upload</button>
</form>
</body>
</html>`
