package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/markettwin/internal/analog"
	s3blob "github.com/alanyoungcy/markettwin/internal/blob/s3"
	"github.com/alanyoungcy/markettwin/internal/cache/redis"
	"github.com/alanyoungcy/markettwin/internal/config"
	"github.com/alanyoungcy/markettwin/internal/domain"
	"github.com/alanyoungcy/markettwin/internal/events"
	"github.com/alanyoungcy/markettwin/internal/provider"
	"github.com/alanyoungcy/markettwin/internal/scenario"
	"github.com/alanyoungcy/markettwin/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. External
// backends (Postgres, Redis, S3) are optional: a laboratory run works fully
// in-process, and each backend only adds persistence, caching, or archival
// on top.
type Dependencies struct {
	// Stores (nil without Postgres)
	RunStore   domain.RunStore
	TradeStore domain.TradeStore
	BarStore   domain.BarStore

	// Caches (nil without Redis)
	PriceCache   domain.PriceCache
	MetricsCache domain.MetricsCache
	EventBus     domain.EventBus

	// Blob storage (nil without S3)
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Always present
	Sink      *events.Sink
	Prices    provider.PriceSeries
	Streamer  provider.Streamer
	Index     *analog.Index
	Projector *scenario.Projector
}

func hasPostgres(cfg *config.Config) bool {
	return cfg.Postgres.DSN != "" || cfg.Postgres.Host != ""
}

func hasRedis(cfg *config.Config) bool {
	return cfg.Redis.Addr != ""
}

func hasS3(cfg *config.Config) bool {
	return cfg.S3.Bucket != ""
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if hasPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.RunStore = postgres.NewRunStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.BarStore = postgres.NewBarStore(pool)
	}

	// --- Redis ---
	if hasRedis(cfg) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.MetricsCache = redis.NewMetricsCache(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
	}

	// --- S3 blob storage ---
	if hasS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewRunArchiver(deps.BlobWriter, logger)
	}

	// --- Event sink ---
	deps.Sink = events.NewSink(cfg.Simulation.EventCapacity)

	// --- Price series ---
	synthetic := provider.NewSynthetic(provider.SyntheticConfig{
		Seed: cfg.Simulation.Seed,
	})
	deps.Streamer = synthetic
	if deps.BarStore != nil {
		deps.Prices = provider.NewStoreBacked(deps.BarStore, synthetic)
	} else {
		deps.Prices = synthetic
	}

	// --- Analog index + scenario projector ---
	index, err := analog.Load(analog.Config{
		DatasetPath:    cfg.Analog.DatasetPath,
		MinSimilarity:  cfg.Analog.MinSimilarity,
		BleedThreshold: cfg.Analog.BleedThreshold,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: analog index: %w", err)
	}
	deps.Index = index

	deps.Projector = scenario.New(scenario.Config{
		TopN:          cfg.Analog.TopN,
		MinSteps:      cfg.Scenario.MinSteps,
		MaxSteps:      cfg.Scenario.MaxSteps,
		Seed:          cfg.Scenario.Seed,
		DefaultVol:    cfg.Scenario.DefaultVol,
		RelativeFloor: cfg.Scenario.RelativeFloor,
		Timeout:       time.Duration(cfg.Scenario.TimeoutMS) * time.Millisecond,
		HistoryLen:    cfg.Scenario.HistoryLen,
		Personas:      cfg.Simulation.Agents,
		AgentCfg:      cfg.Agents,
	}, index, deps.Prices, logger)

	return deps, cleanup, nil
}
