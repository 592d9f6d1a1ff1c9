package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each ticker's
// latest price is a hash at "price:{ticker}" with fields "price" and "ts"
// (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(ticker string) string {
	return "price:" + ticker
}

// SetPrice stores the latest price and timestamp for a ticker.
func (pc *PriceCache) SetPrice(ctx context.Context, ticker string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(ticker), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", ticker, err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for a ticker. It returns
// domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, ticker string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(ticker)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", ticker, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", ticker, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", ticker, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// GetPrices retrieves the latest prices for multiple tickers using a
// pipeline. Tickers without a cached price are omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, tickers []string) (map[string]float64, error) {
	out := make(map[string]float64, len(tickers))
	if len(tickers) == 0 {
		return out, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(tickers))
	for i, t := range tickers {
		cmds[i] = pipe.HGet(ctx, priceKey(t), "price")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: get prices: %w", err)
	}

	for i, cmd := range cmds {
		val, err := cmd.Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis: get price %s: %w", tickers[i], err)
		}
		price, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: parse price %s: %w", tickers[i], err)
		}
		out[tickers[i]] = price
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
