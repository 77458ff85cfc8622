package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/corestate"
	"github.com/ktiyab/coheara/internal/httpapi"
	"github.com/ktiyab/coheara/internal/httpapi/ws"
	"github.com/ktiyab/coheara/internal/lan"
	"github.com/ktiyab/coheara/internal/obslog"
	"github.com/ktiyab/coheara/internal/profilestore"
)

var (
	servePort       int
	serveStagingDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mobile API/WebSocket server and a LAN transfer server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 7420, "port the mobile API server listens on")
	serveCmd.Flags().StringVar(&serveStagingDir, "staging-dir", "staging", "directory for in-progress LAN transfer uploads")
	rootCmd.AddCommand(serveCmd)
}

// httpServerAdapter lets a plain *http.Server satisfy corestate.Server,
// which ServerSlot.Start needs to manage the mobile API listener's
// lifetime the same way it manages the LAN servers.
type httpServerAdapter struct {
	srv *http.Server
	ln  net.Listener
}

func (a *httpServerAdapter) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- a.srv.Serve(a.ln) }()
	select {
	case <-ctx.Done():
		return a.srv.Close()
	case err := <-serveErr:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := obslog.NewDefault()
	httpapi.SetTicketTTL(cfg.WS)

	store, err := profilestore.New(cfg.ProfilesDir)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}

	state := corestate.New(*cfg, store, log)

	hub := ws.NewHub(state, httpapi.ConsumeTicket, cfg.WS.Heartbeat)
	router := httpapi.NewRouter(state, *cfg, hub)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", servePort))
	if err != nil {
		return fmt.Errorf("bind mobile API server: %w", err)
	}
	adapter := &httpServerAdapter{srv: &http.Server{Handler: router}, ln: ln}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	state.MobileAPIServer.Start(ctx, adapter)
	log.Info("mobile api server listening", obslog.String("addr", ln.Addr().String()))

	transferServer, err := lan.NewTransferServer(cfg.LAN, serveStagingDir, log)
	if err != nil {
		log.Error("failed to prepare transfer server", obslog.Err(err))
	} else {
		state.TransferServer.Start(ctx, transferServer)
		log.Info("transfer session ready", obslog.String("pin", transferServer.Session.PIN))
	}

	<-ctx.Done()
	log.Info("shutting down")
	state.MobileAPIServer.Stop()
	state.TransferServer.Stop()
	state.DistributionServer.Stop()
	return nil
}
