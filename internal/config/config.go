// Package config defines the top-level configuration for the market
// laboratory and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETTWIN_* environment
// variables.
type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Engine     EngineConfig     `toml:"engine"`
	Agents     AgentsConfig     `toml:"agents"`
	Analog     AnalogConfig     `toml:"analog"`
	Scenario   ScenarioConfig   `toml:"scenario"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// SimulationConfig controls a simulation run.
type SimulationConfig struct {
	Symbols       []string `toml:"symbols"`
	Agents        []string `toml:"agents"` // persona names, fixed decision order
	MaxTicks      int      `toml:"max_ticks"`
	Seed          int64    `toml:"seed"`
	InitialCash   float64  `toml:"initial_cash"`
	EventCapacity int      `toml:"event_capacity"`
	ReorderDepth  int      `toml:"reorder_depth"` // realtime out-of-order buffer
}

// EngineConfig holds matching engine parameters.
type EngineConfig struct {
	SensitivityK float64 `toml:"sensitivity_k"`
	FeeRate      float64 `toml:"fee_rate"`
}

// AgentsConfig holds per-persona tuning parameters.
type AgentsConfig struct {
	MeanReversion MeanReversionConfig `toml:"mean_reversion"`
	Momentum      MomentumConfig      `toml:"momentum"`
	Dealer        DealerConfig        `toml:"dealer"`
}

// MeanReversionConfig tunes the mean-reversion persona.
type MeanReversionConfig struct {
	Span         int     `toml:"span"`
	ThresholdBps float64 `toml:"threshold_bps"`
	MaxQty       float64 `toml:"max_qty"`
}

// MomentumConfig tunes the momentum persona.
type MomentumConfig struct {
	Lookback     int     `toml:"lookback"`
	CashFraction float64 `toml:"cash_fraction"`
	MaxQty       float64 `toml:"max_qty"`
}

// DealerConfig tunes the dealer persona.
type DealerConfig struct {
	SpreadBps   float64 `toml:"spread_bps"`
	QuoteQty    float64 `toml:"quote_qty"`
	RevertRate  float64 `toml:"revert_rate"`
	MaxQty      float64 `toml:"max_qty"`
}

// AnalogConfig holds analog index parameters.
type AnalogConfig struct {
	DatasetPath    string  `toml:"dataset_path"` // empty: use the embedded dataset
	MinSimilarity  float64 `toml:"min_similarity"`
	BleedThreshold float64 `toml:"bleed_threshold"` // cross-ticker match floor
	TopN           int     `toml:"top_n"`
}

// ScenarioConfig holds scenario projection parameters.
type ScenarioConfig struct {
	MinSteps   int     `toml:"min_steps"`
	MaxSteps   int     `toml:"max_steps"`
	Seed       int64   `toml:"seed"`
	DefaultVol float64 `toml:"default_vol"`
	// RelativeFloor is the fraction of the best analog's similarity a
	// retrieved analog needs to join the aggregation.
	RelativeFloor float64 `toml:"relative_floor"`
	TimeoutMS     int     `toml:"timeout_ms"`
	HistoryLen    int     `toml:"history_len"` // in-memory scenario history kept
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP API server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // empty disables authentication
}

// validModes are the supported operating modes.
var validModes = map[string]bool{
	"backtest": true,
	"realtime": true,
	"serve":    true,
	"full":     true,
}

// Validate checks the configuration for contradictions and missing values
// that would otherwise surface deep inside a run.
func (c *Config) Validate() error {
	mode := strings.ToLower(strings.TrimSpace(c.Mode))
	if !validModes[mode] {
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}
	if len(c.Simulation.Symbols) == 0 {
		return fmt.Errorf("config: simulation.symbols must not be empty")
	}
	if len(c.Simulation.Agents) == 0 {
		return fmt.Errorf("config: simulation.agents must not be empty")
	}
	if c.Simulation.MaxTicks <= 0 {
		return fmt.Errorf("config: simulation.max_ticks must be positive")
	}
	if c.Simulation.InitialCash <= 0 {
		return fmt.Errorf("config: simulation.initial_cash must be positive")
	}
	if c.Engine.SensitivityK <= 0 || c.Engine.SensitivityK >= 1 {
		return fmt.Errorf("config: engine.sensitivity_k must be in (0,1), got %v", c.Engine.SensitivityK)
	}
	if c.Engine.FeeRate < 0 {
		return fmt.Errorf("config: engine.fee_rate must not be negative")
	}
	if c.Analog.MinSimilarity < 0 || c.Analog.MinSimilarity > 1 {
		return fmt.Errorf("config: analog.min_similarity must be in [0,1]")
	}
	if c.Scenario.MinSteps <= 0 || c.Scenario.MaxSteps < c.Scenario.MinSteps {
		return fmt.Errorf("config: scenario step range [%d,%d] is invalid",
			c.Scenario.MinSteps, c.Scenario.MaxSteps)
	}
	if c.Scenario.RelativeFloor < 0 || c.Scenario.RelativeFloor > 1 {
		return fmt.Errorf("config: scenario.relative_floor must be in [0,1]")
	}
	if needsServer(mode) && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d is out of range", c.Server.Port)
	}
	return nil
}

func needsServer(mode string) bool {
	return mode == "serve" || mode == "full"
}
