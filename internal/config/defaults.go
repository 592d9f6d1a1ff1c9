package config

// Defaults returns a Config populated with sensible defaults for local use.
// The matching sensitivity, similarity floor, and step clamp are deliberate
// configuration rather than hard-coded engine behavior.
func Defaults() Config {
	return Config{
		Mode:     "backtest",
		LogLevel: "info",
		Simulation: SimulationConfig{
			Symbols:       []string{"SPY"},
			Agents:        []string{"mean_reversion", "momentum"},
			MaxTicks:      500,
			Seed:          42,
			InitialCash:   100_000,
			EventCapacity: 1000,
			ReorderDepth:  16,
		},
		Engine: EngineConfig{
			SensitivityK: 0.05,
			FeeRate:      0,
		},
		Agents: AgentsConfig{
			MeanReversion: MeanReversionConfig{
				Span:         30,
				ThresholdBps: 25,
				MaxQty:       120,
			},
			Momentum: MomentumConfig{
				Lookback:     5,
				CashFraction: 0.02,
				MaxQty:       40,
			},
			Dealer: DealerConfig{
				SpreadBps:  10,
				QuoteQty:   5,
				RevertRate: 0.25,
				MaxQty:     200,
			},
		},
		Analog: AnalogConfig{
			MinSimilarity:  0.05,
			BleedThreshold: 0.8,
			TopN:           3,
		},
		Scenario: ScenarioConfig{
			MinSteps:      5,
			MaxSteps:      120,
			Seed:          42,
			DefaultVol:    0.02,
			RelativeFloor: 0.75,
			TimeoutMS:     5000,
			HistoryLen:    50,
		},
		// Backends stay disabled until a host, address, or bucket is set;
		// the laboratory runs fully in-process without them.
		Postgres: PostgresConfig{
			Port:         5432,
			Database:     "markettwin",
			User:         "markettwin",
			SSLMode:      "disable",
			PoolMaxConns: 8,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			PoolSize: 8,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}
