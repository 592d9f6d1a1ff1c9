package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Mode != "backtest" {
		t.Errorf("Mode = %q, want %q", cfg.Mode, "backtest")
	}
	if cfg.Simulation.MaxTicks != 500 {
		t.Errorf("Simulation.MaxTicks = %d, want 500", cfg.Simulation.MaxTicks)
	}
	if cfg.Engine.SensitivityK != 0.05 {
		t.Errorf("Engine.SensitivityK = %v, want 0.05", cfg.Engine.SensitivityK)
	}
	// Backends are opt-in.
	if cfg.Postgres.Host != "" || cfg.Redis.Addr != "" || cfg.S3.Bucket != "" {
		t.Errorf("backend defaults not empty: postgres=%q redis=%q s3=%q",
			cfg.Postgres.Host, cfg.Redis.Addr, cfg.S3.Bucket)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v, want nil", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "full"
log_level = "debug"

[simulation]
symbols = ["SPY", "TLT"]
max_ticks = 250

[engine]
sensitivity_k = 0.02

[server]
port = 9090
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mode != "full" {
		t.Errorf("Mode = %q, want %q", cfg.Mode, "full")
	}
	if got := cfg.Simulation.Symbols; len(got) != 2 || got[1] != "TLT" {
		t.Errorf("Simulation.Symbols = %v, want [SPY TLT]", got)
	}
	if cfg.Simulation.MaxTicks != 250 {
		t.Errorf("Simulation.MaxTicks = %d, want 250", cfg.Simulation.MaxTicks)
	}
	if cfg.Engine.SensitivityK != 0.02 {
		t.Errorf("Engine.SensitivityK = %v, want 0.02", cfg.Engine.SensitivityK)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	// Untouched sections retain defaults.
	if cfg.Simulation.Seed != 42 {
		t.Errorf("Simulation.Seed = %d, want default 42", cfg.Simulation.Seed)
	}
	if cfg.Scenario.MaxSteps != 120 {
		t.Errorf("Scenario.MaxSteps = %d, want default 120", cfg.Scenario.MaxSteps)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Errorf("Load(absent) = nil error, want failure")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "backtest"

[simulation]
max_ticks = 100

[redis]
addr = "redis-file:6379"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MARKETTWIN_MODE", "serve")
	t.Setenv("MARKETTWIN_SIM_MAX_TICKS", "77")
	t.Setenv("MARKETTWIN_SIM_SYMBOLS", "QQQ, IWM")
	t.Setenv("MARKETTWIN_REDIS_ADDR", "redis-env:6379")
	t.Setenv("MARKETTWIN_ENGINE_SENSITIVITY_K", "0.08")
	t.Setenv("MARKETTWIN_POSTGRES_RUN_MIGRATIONS", "true")
	t.Setenv("MARKETTWIN_SERVER_API_KEY", "s3cr3t")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mode != "serve" {
		t.Errorf("Mode = %q, want env override %q", cfg.Mode, "serve")
	}
	if cfg.Simulation.MaxTicks != 77 {
		t.Errorf("Simulation.MaxTicks = %d, want 77", cfg.Simulation.MaxTicks)
	}
	if got := cfg.Simulation.Symbols; len(got) != 2 || got[0] != "QQQ" || got[1] != "IWM" {
		t.Errorf("Simulation.Symbols = %v, want [QQQ IWM]", got)
	}
	if cfg.Redis.Addr != "redis-env:6379" {
		t.Errorf("Redis.Addr = %q, want env value", cfg.Redis.Addr)
	}
	if cfg.Engine.SensitivityK != 0.08 {
		t.Errorf("Engine.SensitivityK = %v, want 0.08", cfg.Engine.SensitivityK)
	}
	if !cfg.Postgres.RunMigrations {
		t.Errorf("Postgres.RunMigrations = false, want true")
	}
	if cfg.Server.APIKey != "s3cr3t" {
		t.Errorf("Server.APIKey = %q, want env value", cfg.Server.APIKey)
	}
}

func TestEnvOverrideIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("MARKETTWIN_SIM_MAX_TICKS", "not-a-number")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Simulation.MaxTicks != 500 {
		t.Errorf("Simulation.MaxTicks = %d, want untouched default 500", cfg.Simulation.MaxTicks)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "montecarlo" }},
		{"empty symbols", func(c *Config) { c.Simulation.Symbols = nil }},
		{"empty agents", func(c *Config) { c.Simulation.Agents = nil }},
		{"non-positive ticks", func(c *Config) { c.Simulation.MaxTicks = 0 }},
		{"non-positive cash", func(c *Config) { c.Simulation.InitialCash = -1 }},
		{"sensitivity too low", func(c *Config) { c.Engine.SensitivityK = 0 }},
		{"sensitivity too high", func(c *Config) { c.Engine.SensitivityK = 1 }},
		{"negative fee", func(c *Config) { c.Engine.FeeRate = -0.001 }},
		{"similarity out of range", func(c *Config) { c.Analog.MinSimilarity = 1.5 }},
		{"inverted step range", func(c *Config) { c.Scenario.MinSteps = 50; c.Scenario.MaxSteps = 10 }},
		{"relative floor out of range", func(c *Config) { c.Scenario.RelativeFloor = 1.5 }},
		{"serve without port", func(c *Config) { c.Mode = "serve"; c.Server.Port = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}
}

func TestValidateAcceptsMixedCaseMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = " Backtest "
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for trimmed case-insensitive mode", err)
	}
}
