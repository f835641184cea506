package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Port != 8980 {
		t.Errorf("port = %d, want 8980", cfg.API.Port)
	}
	if cfg.Ledger.StakePct != 10 || cfg.Ledger.FeeBps != 250 {
		t.Errorf("protocol params = %d%% stake / %d bps fee, want 10 / 250",
			cfg.Ledger.StakePct, cfg.Ledger.FeeBps)
	}
	if !cfg.Worker.Enabled || cfg.Worker.MaxConcurrent != 3 {
		t.Errorf("worker defaults = %+v", cfg.Worker)
	}
}

func TestLoadConfig_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("QUARRY_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("host = %s, want default", cfg.API.Host)
	}
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("QUARRY_HOME", home)

	cfg := DefaultConfig()
	cfg.API.Port = 9000
	cfg.Worker.Enabled = false
	cfg.Worker.ScanInterval = "30s"
	cfg.Ledger.Arbiter = "judge"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "config.toml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.API.Port != 9000 || loaded.Worker.Enabled || loaded.Ledger.Arbiter != "judge" {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
	if loaded.Worker.ScanInterval != "30s" {
		t.Errorf("scan interval = %s, want 30s", loaded.Worker.ScanInterval)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("QUARRY_HOME", home)

	partial := "[api]\nport = 9999\n"
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9999 {
		t.Errorf("port = %d, want overridden 9999", cfg.API.Port)
	}
	// Everything the file doesn't mention keeps its default.
	if cfg.Ledger.FeeBps != 250 || cfg.Worker.ScanWindow != 50 {
		t.Errorf("defaults lost on partial load: %+v", cfg)
	}
}

func TestParseDuration(t *testing.T) {
	if d := parseDuration("45s", time.Minute); d != 45*time.Second {
		t.Errorf("parseDuration(45s) = %v", d)
	}
	if d := parseDuration("", time.Minute); d != time.Minute {
		t.Errorf("empty should fall back, got %v", d)
	}
	if d := parseDuration("bogus", time.Minute); d != time.Minute {
		t.Errorf("garbage should fall back, got %v", d)
	}
}
