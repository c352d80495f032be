package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
[market]
fee_rate = 0.03

[agents]
count = 25

[clock]
tick_interval = "30s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Market.FeeRate != 0.03 {
		t.Errorf("expected fee rate 0.03, got %v", cfg.Market.FeeRate)
	}
	if cfg.Agents.Count != 25 {
		t.Errorf("expected 25 agents, got %d", cfg.Agents.Count)
	}
	if cfg.Clock.TickInterval.Duration != 30*time.Second {
		t.Errorf("expected 30s tick, got %v", cfg.Clock.TickInterval.Duration)
	}
	if cfg.Market.InitialLiquidity != 1000 {
		t.Errorf("expected default liquidity to survive, got %v", cfg.Market.InitialLiquidity)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Game.DurationDays != 30 {
		t.Errorf("expected default duration 30, got %d", cfg.Game.DurationDays)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PREDICTSIM_REDIS_ADDR", "redis:6380")
	t.Setenv("PREDICTSIM_SEED", "42")
	t.Setenv("PREDICTSIM_S3_ENABLED", "true")

	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("expected redis addr override, got %q", cfg.Redis.Addr)
	}
	if cfg.General.Seed != 42 {
		t.Errorf("expected seed 42, got %d", cfg.General.Seed)
	}
	if !cfg.Archive.S3Enabled {
		t.Error("expected S3 enabled from env")
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
[market]
fee_rate = 1.5

[game]
duration_days = 2
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "fee_rate") || !strings.Contains(msg, "duration_days") {
		t.Errorf("expected both problems reported, got %v", err)
	}
}

func TestMarketConfig_Fees(t *testing.T) {
	fees := DefaultConfig().Market.Fees()
	if fees.Rate != 0.02 || fees.PlatformShare != 0.5 || fees.MinFee != 0.01 {
		t.Errorf("unexpected fee config %+v", fees)
	}
}
