package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETTWIN_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load. An empty path skips
// the file and uses defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETTWIN_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "MARKETTWIN_MODE")
	setStr(&cfg.LogLevel, "MARKETTWIN_LOG_LEVEL")

	// ── Simulation ──
	setStrSlice(&cfg.Simulation.Symbols, "MARKETTWIN_SIM_SYMBOLS")
	setStrSlice(&cfg.Simulation.Agents, "MARKETTWIN_SIM_AGENTS")
	setInt(&cfg.Simulation.MaxTicks, "MARKETTWIN_SIM_MAX_TICKS")
	setInt64(&cfg.Simulation.Seed, "MARKETTWIN_SIM_SEED")
	setFloat(&cfg.Simulation.InitialCash, "MARKETTWIN_SIM_INITIAL_CASH")

	// ── Engine ──
	setFloat(&cfg.Engine.SensitivityK, "MARKETTWIN_ENGINE_SENSITIVITY_K")
	setFloat(&cfg.Engine.FeeRate, "MARKETTWIN_ENGINE_FEE_RATE")

	// ── Analog / scenario ──
	setStr(&cfg.Analog.DatasetPath, "MARKETTWIN_ANALOG_DATASET_PATH")
	setFloat(&cfg.Analog.MinSimilarity, "MARKETTWIN_ANALOG_MIN_SIMILARITY")
	setInt64(&cfg.Scenario.Seed, "MARKETTWIN_SCENARIO_SEED")
	setInt(&cfg.Scenario.TimeoutMS, "MARKETTWIN_SCENARIO_TIMEOUT_MS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKETTWIN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARKETTWIN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETTWIN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETTWIN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETTWIN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETTWIN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETTWIN_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "MARKETTWIN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETTWIN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETTWIN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETTWIN_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "MARKETTWIN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MARKETTWIN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETTWIN_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETTWIN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETTWIN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETTWIN_S3_SECRET_KEY")

	// ── Server ──
	setInt(&cfg.Server.Port, "MARKETTWIN_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "MARKETTWIN_SERVER_API_KEY")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStrSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
