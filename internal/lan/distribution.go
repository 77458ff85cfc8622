package lan

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/obslog"
)

// DistributionSession is the desktop-facing snapshot of a running
// distribution server.
type DistributionSession struct {
	SessionID      string
	ServerAddr     string
	URL            string
	StartedAt      time.Time
	DesktopVersion string
}

// DistributionServer serves the mobile companion's install page, APK, and
// PWA bundle to clients on the local network only (spec §4.12). Every
// request from a non-private address is rejected with 403 before any
// file I/O happens.
type DistributionServer struct {
	cfg            config.LANConfig
	pwaDir         string
	apkPath        string
	desktopVersion string
	log            obslog.Logger

	Session DistributionSession

	mu           sync.Mutex
	requestCount int
	limiters     map[string]*rate.Limiter
}

// NewDistributionServer builds a distribution server handle. pwaDir/apkPath
// may be empty if those artifacts aren't bundled with this build.
func NewDistributionServer(cfg config.LANConfig, pwaDir, apkPath, desktopVersion string, log obslog.Logger) *DistributionServer {
	return &DistributionServer{
		cfg:            cfg,
		pwaDir:         pwaDir,
		apkPath:        apkPath,
		desktopVersion: desktopVersion,
		log:            log,
		Session: DistributionSession{
			SessionID:      uuid.NewString(),
			StartedAt:      time.Now(),
			DesktopVersion: desktopVersion,
		},
		limiters: make(map[string]*rate.Limiter),
	}
}

// Run binds an ephemeral local-network port and serves until ctx is
// canceled, satisfying corestate.Server.
func (s *DistributionServer) Run(ctx context.Context) error {
	localIP, err := localNetworkIP()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(localIP.String(), "0"))
	if err != nil {
		return fmt.Errorf("lan: bind distribution server: %w", err)
	}
	addr := listener.Addr().(*net.TCPAddr)
	s.Session.ServerAddr = addr.String()
	s.Session.URL = fmt.Sprintf("http://%s/install", addr.String())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /install", s.gate(s.serveInstallPage))
	mux.HandleFunc("GET /install/android", s.gate(s.serveAndroidInstructions))
	mux.HandleFunc("GET /install/android/download", s.gate(s.serveAPK))
	mux.HandleFunc("GET /app/", s.gate(s.servePWA))
	mux.HandleFunc("GET /update", s.gate(s.serveUpdateCheck))
	mux.HandleFunc("GET /health", s.gate(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) }))

	srv := &http.Server{Handler: mux}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(listener) }()

	select {
	case <-ctx.Done():
		srv.Close()
		return nil
	case err := <-serveErr:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// gate enforces private-network-only access and a per-IP rate limit
// before any handler logic runs (spec §4.12).
func (s *DistributionServer) gate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !IsLocalNetwork(ip) {
			http.Error(w, "forbidden: distribution is local-network only", http.StatusForbidden)
			return
		}

		if !s.allow(host) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		s.mu.Lock()
		s.requestCount++
		s.mu.Unlock()

		next(w, r)
	}
}

func (s *DistributionServer) allow(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(s.cfg.DistributionRatePerMin)/60.0), s.cfg.DistributionRatePerMin)
		s.limiters[ip] = limiter
	}
	return limiter.Allow()
}

func (s *DistributionServer) serveInstallPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, installPageHTML, s.desktopVersion)
}

func (s *DistributionServer) serveAndroidInstructions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(androidInstructionsHTML))
}

func (s *DistributionServer) serveAPK(w http.ResponseWriter, r *http.Request) {
	if s.apkPath == "" {
		http.Error(w, "apk not available in this build", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.android.package-archive")
	http.ServeFile(w, r, s.apkPath)
}

// servePWA serves the bundled PWA directory, rejecting any request path
// that escapes pwaDir via ".." traversal (spec §4.12).
func (s *DistributionServer) servePWA(w http.ResponseWriter, r *http.Request) {
	if s.pwaDir == "" {
		http.Error(w, "app bundle not available in this build", http.StatusNotFound)
		return
	}
	rel := strings.TrimPrefix(r.URL.Path, "/app/")
	target := filepath.Join(s.pwaDir, rel)

	cleanBase, err := filepath.Abs(s.pwaDir)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	cleanTarget, err := filepath.Abs(target)
	if err != nil || (cleanTarget != cleanBase && !strings.HasPrefix(cleanTarget, cleanBase+string(filepath.Separator))) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if info, err := os.Stat(cleanTarget); err != nil || info.IsDir() {
		cleanTarget = filepath.Join(cleanBase, "index.html")
	}
	f, err := os.Open(cleanTarget)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// ServeContent, unlike ServeFile, does not redirect ".../index.html".
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *DistributionServer) serveUpdateCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"latest_version":%q,"update_available":false}`, s.desktopVersion)
}

// RequestCount reports how many requests this session has served.
func (s *DistributionServer) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount
}

const installPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Install Coheara Companion</title>
</head>
<body>
<h1>Install the Coheara companion app</h1>
<p>Desktop version: %s</p>
<a href="/install/android">Android</a>
<a href="/app/">Open web app</a>
</body>
</html>`

const androidInstructionsHTML = `<!DOCTYPE html>
<html lang="en">
<body>
<h1>Install on Android</h1>
<p>Download the APK and allow installs from unknown sources to sideload it.</p>
<a href="/install/android/download">Download APK</a>
</body>
</html>`
