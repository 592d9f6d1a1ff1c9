package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// MetricsCache implements domain.MetricsCache using Redis. Each run's
// summary is JSON at "run:{id}:metrics" and "run:latest" points at the most
// recently written run id.
type MetricsCache struct {
	rdb *redis.Client
}

// NewMetricsCache creates a MetricsCache backed by the given Client.
func NewMetricsCache(c *Client) *MetricsCache {
	return &MetricsCache{rdb: c.Underlying()}
}

func metricsKey(runID string) string {
	return "run:" + runID + ":metrics"
}

const latestKey = "run:latest"

// SetRunMetrics stores a run summary snapshot and moves the latest pointer.
func (mc *MetricsCache) SetRunMetrics(ctx context.Context, summary domain.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("redis: marshal metrics %s: %w", summary.RunID, err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Set(ctx, metricsKey(summary.RunID), data, 0)
	pipe.Set(ctx, latestKey, summary.RunID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set metrics %s: %w", summary.RunID, err)
	}
	return nil
}

// GetRunMetrics returns the stored summary for a run, or domain.ErrNotFound.
func (mc *MetricsCache) GetRunMetrics(ctx context.Context, runID string) (domain.RunSummary, error) {
	data, err := mc.rdb.Get(ctx, metricsKey(runID)).Bytes()
	if err == redis.Nil {
		return domain.RunSummary{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("redis: get metrics %s: %w", runID, err)
	}

	var summary domain.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return domain.RunSummary{}, fmt.Errorf("redis: unmarshal metrics %s: %w", runID, err)
	}
	return summary, nil
}

// GetLatest returns the summary of the most recently written run.
func (mc *MetricsCache) GetLatest(ctx context.Context) (domain.RunSummary, error) {
	runID, err := mc.rdb.Get(ctx, latestKey).Result()
	if err == redis.Nil {
		return domain.RunSummary{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("redis: get latest run id: %w", err)
	}
	return mc.GetRunMetrics(ctx, runID)
}

// Compile-time interface check.
var _ domain.MetricsCache = (*MetricsCache)(nil)
