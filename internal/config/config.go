// Package config loads the tunables spec.md §6 calls out as
// "compile-time or configuration-file constants" from a layered YAML file
// plus an optional .env overlay for local development, following the
// environment-layered loader shape of the teacher's config package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable named across spec.md §4, §5, §6.
type Config struct {
	ProfilesDir string `yaml:"profiles_dir"`

	InactivityTimeout time.Duration `yaml:"-"`
	InactivityTimeoutSeconds int    `yaml:"inactivity_timeout_seconds"`
	SleepMargin       time.Duration `yaml:"-"`
	SleepMarginSeconds int          `yaml:"sleep_margin_seconds"`

	Audit AuditConfig `yaml:"audit"`

	Devices DeviceConfig `yaml:"devices"`

	Pairing PairingConfig `yaml:"pairing"`

	Middleware MiddlewareConfig `yaml:"middleware"`

	WS WSConfig `yaml:"websocket"`

	LAN LANConfig `yaml:"lan"`

	Backup BackupConfig `yaml:"backup"`
}

// AuditConfig tunes C5.
type AuditConfig struct {
	Capacity   int `yaml:"capacity"`
	RetainDays int `yaml:"retain_days"`
}

// DeviceConfig tunes C6.
type DeviceConfig struct {
	MaxPaired         int           `yaml:"max_paired"`
	MaxPendingAlerts  int           `yaml:"max_pending_alerts"`
	TokenGraceSeconds int           `yaml:"token_grace_seconds"`
	TokenGrace        time.Duration `yaml:"-"`
}

// PairingConfig tunes C7.
type PairingConfig struct {
	IssuedTTLSeconds     int           `yaml:"issued_ttl_seconds"`
	ApprovalTTLSeconds   int           `yaml:"approval_ttl_seconds"`
	IssuedTTL            time.Duration `yaml:"-"`
	ApprovalTTL          time.Duration `yaml:"-"`
}

// MiddlewareConfig tunes C9.
type MiddlewareConfig struct {
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	NonceWindowSeconds int           `yaml:"nonce_window_seconds"`
	NonceWindow        time.Duration `yaml:"-"`
}

// WSConfig tunes C11.
type WSConfig struct {
	TicketTTLSeconds    int           `yaml:"ticket_ttl_seconds"`
	TicketTTL           time.Duration `yaml:"-"`
	HeartbeatSeconds    int           `yaml:"heartbeat_seconds"`
	Heartbeat           time.Duration `yaml:"-"`
	SendQueueDepth      int           `yaml:"send_queue_depth"`
}

// LANConfig tunes C12.
type LANConfig struct {
	TransferMaxUploads       int           `yaml:"transfer_max_uploads"`
	TransferIdleSeconds      int           `yaml:"transfer_idle_seconds"`
	TransferIdle             time.Duration `yaml:"-"`
	TransferMaxUploadBytes   int64         `yaml:"transfer_max_upload_bytes"`
	TransferMaxFailedPINs    int           `yaml:"transfer_max_failed_pins"`
	DistributionRatePerMin   int           `yaml:"distribution_rate_per_minute"`
}

// BackupConfig tunes C13.
type BackupConfig struct {
	MaxMetadataBytes int `yaml:"max_metadata_bytes"`
}

// Default returns the spec-mandated defaults (used when no config file is
// present, and as the base before a file/env overlay is applied).
func Default() *Config {
	return &Config{
		ProfilesDir:              "profiles",
		InactivityTimeoutSeconds: 15 * 60,
		SleepMarginSeconds:       30 * 60,
		Audit: AuditConfig{
			Capacity:   100,
			RetainDays: 90,
		},
		Devices: DeviceConfig{
			MaxPaired:         3,
			MaxPendingAlerts:  50,
			TokenGraceSeconds: 30,
		},
		Pairing: PairingConfig{
			IssuedTTLSeconds:   120,
			ApprovalTTLSeconds: 300,
		},
		Middleware: MiddlewareConfig{
			RateLimitPerMinute: 120,
			NonceWindowSeconds: 300,
		},
		WS: WSConfig{
			TicketTTLSeconds: 30,
			HeartbeatSeconds: 30,
			SendQueueDepth:   64,
		},
		LAN: LANConfig{
			TransferMaxUploads:     20,
			TransferIdleSeconds:    5 * 60,
			TransferMaxUploadBytes: 50 * 1024 * 1024,
			TransferMaxFailedPINs:  5,
			DistributionRatePerMin: 60,
		},
		Backup: BackupConfig{
			MaxMetadataBytes: 10 * 1024 * 1024,
		},
	}
}

// Load reads configDir/config.yaml if present, overlays configDir/.env via
// godotenv (dev convenience only — spec.md §6 requires no env vars for core
// behavior, so failures to find either file are not errors), and resolves
// the derived time.Duration fields.
func Load(configDir string) (*Config, error) {
	cfg := Default()

	envFile := filepath.Join(configDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	}

	yamlFile := filepath.Join(configDir, "config.yaml")
	if data, err := os.ReadFile(yamlFile); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", yamlFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", yamlFile, err)
	}

	resolveDurations(cfg)
	return cfg, nil
}

func resolveDurations(cfg *Config) {
	cfg.InactivityTimeout = time.Duration(cfg.InactivityTimeoutSeconds) * time.Second
	cfg.SleepMargin = time.Duration(cfg.SleepMarginSeconds) * time.Second
	cfg.Devices.TokenGrace = time.Duration(cfg.Devices.TokenGraceSeconds) * time.Second
	cfg.Pairing.IssuedTTL = time.Duration(cfg.Pairing.IssuedTTLSeconds) * time.Second
	cfg.Pairing.ApprovalTTL = time.Duration(cfg.Pairing.ApprovalTTLSeconds) * time.Second
	cfg.Middleware.NonceWindow = time.Duration(cfg.Middleware.NonceWindowSeconds) * time.Second
	cfg.WS.TicketTTL = time.Duration(cfg.WS.TicketTTLSeconds) * time.Second
	cfg.WS.Heartbeat = time.Duration(cfg.WS.HeartbeatSeconds) * time.Second
	cfg.LAN.TransferIdle = time.Duration(cfg.LAN.TransferIdleSeconds) * time.Second
}
