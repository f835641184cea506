// Package daemon manages the Quarry daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Worker    WorkerConfig    `toml:"worker"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// LedgerConfig holds the escrow protocol parameters.
type LedgerConfig struct {
	MinPayment           int64  `toml:"min_payment"`
	StakePct             int64  `toml:"stake_pct"`
	FeeBps               int64  `toml:"fee_bps"`
	AutoApproveHours     int    `toml:"auto_approve_hours"`
	MaxResultLen         int    `toml:"max_result_len"`
	Arbiter              string `toml:"arbiter"`
	FeeAccount           string `toml:"fee_account"`
}

// WorkerConfig controls the autonomous worker scheduler.
type WorkerConfig struct {
	Enabled             bool   `toml:"enabled"`
	Address             string `toml:"address"`
	ScanInterval        string `toml:"scan_interval"` // time.ParseDuration format
	ScanWindow          int    `toml:"scan_window"`
	MinPayment          int64  `toml:"min_payment"`
	MaxConcurrent       int    `toml:"max_concurrent"`
	ConfidenceThreshold int    `toml:"confidence_threshold"`
	ProcessingTimeout   string `toml:"processing_timeout"`
	QuarantineDuration  string `toml:"quarantine_duration"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns sensible defaults for a single-node deployment.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8980,
			CORSOrigins: []string{"*"},
		},
		Ledger: LedgerConfig{
			MinPayment:       100,
			StakePct:         10,
			FeeBps:           250,
			AutoApproveHours: 24,
			MaxResultLen:     4096,
			Arbiter:          "arbiter",
			FeeAccount:       "treasury",
		},
		Worker: WorkerConfig{
			Enabled:             true,
			Address:             "worker-local",
			ScanInterval:        "15s",
			ScanWindow:          50,
			MinPayment:          100,
			MaxConcurrent:       3,
			ConfidenceThreshold: 60,
			ProcessingTimeout:   "2m",
			QuarantineDuration:  "10m",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from ~/.quarry/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(quarryHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.quarry/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(quarryHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// quarryHome returns the Quarry data directory.
func quarryHome() string {
	if env := os.Getenv("QUARRY_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".quarry")
}

// QuarryHome is exported for use by other packages.
func QuarryHome() string {
	return quarryHome()
}
