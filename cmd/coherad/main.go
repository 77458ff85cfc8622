package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "coherad",
	Short: "Coheara daemon - local-first personal health records backend",
	Long: `coherad runs the Coheara desktop backend: profile storage, the
paired-device API server, and LAN servers for phone-to-desktop document
transfer and mobile companion app distribution.

This tool supports:
- Starting the desktop/mobile API and WebSocket servers
- Profile creation, unlock, password rotation, and deletion
- Encrypted backup creation, preview, and restore`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().String("config-dir", ".", "directory holding config.yaml and .env")
}
