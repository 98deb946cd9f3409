// Package trending maintains the approximate most-traded ranking using a
// RedisBloom Top-K sketch. The structure carries a TTL; its expiry is the
// window-reset trigger, handled by the keyspace listener in main, so the
// ranking is at most one window old.
package trending

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// Client abstracts the Top-K and key commands the estimator uses.
type Client interface {
	TopKReserveWithOptions(ctx context.Context, key string, k int64, width int64, depth int64, decay float64) *redis.StatusCmd
	TopKAdd(ctx context.Context, key string, elements ...interface{}) *redis.StringSliceCmd
	TopKList(ctx context.Context, key string) *redis.StringSliceCmd
	TopKListWithCount(ctx context.Context, key string) *redis.MapStringIntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

var _ Client = (*redis.Client)(nil)

// Config shapes the sketch. Slots bounds the ranking size; width, depth and
// decay only tune estimation accuracy.
type Config struct {
	Key    string
	Slots  int64
	Width  int64
	Depth  int64
	Decay  float64
	Window time.Duration
}

type Estimator struct {
	rdb    Client
	cfg    Config
	logger *zap.Logger
}

func NewEstimator(rdb Client, cfg Config, logger *zap.Logger) *Estimator {
	return &Estimator{rdb: rdb, cfg: cfg, logger: logger}
}

// Reserve initializes an empty sketch for the current window and arms the
// expiry that ends it.
func (e *Estimator) Reserve(ctx context.Context) error {
	err := e.rdb.TopKReserveWithOptions(ctx, e.cfg.Key, e.cfg.Slots, e.cfg.Width, e.cfg.Depth, e.cfg.Decay).Err()
	if err != nil {
		return fmt.Errorf("topk reserve: %w", err)
	}
	if err := e.rdb.Expire(ctx, e.cfg.Key, e.cfg.Window).Err(); err != nil {
		return fmt.Errorf("topk expire: %w", err)
	}
	return nil
}

// Record counts one trade for the symbol. Returns false without error when
// the window structure does not currently exist (between expiry and the
// next reserve).
func (e *Estimator) Record(ctx context.Context, symbol string) (bool, error) {
	n, err := e.rdb.Exists(ctx, e.cfg.Key).Result()
	if err != nil {
		return false, fmt.Errorf("topk exists: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := e.rdb.TopKAdd(ctx, e.cfg.Key, symbol).Err(); err != nil {
		return false, fmt.Errorf("topk add: %w", err)
	}
	return true, nil
}

// Snapshot returns the current ranking, highest frequency first, at most
// Slots entries. An uninitialized window yields an empty ranking, not an
// error.
func (e *Estimator) Snapshot(ctx context.Context, withCounts bool) ([]models.TrendingEntry, error) {
	symbols, err := e.rdb.TopKList(ctx, e.cfg.Key).Result()
	if err != nil {
		if isMissingKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("topk list: %w", err)
	}

	entries := make([]models.TrendingEntry, 0, len(symbols))
	for _, sym := range symbols {
		entries = append(entries, models.TrendingEntry{Symbol: sym})
	}

	if withCounts && len(entries) > 0 {
		counts, err := e.rdb.TopKListWithCount(ctx, e.cfg.Key).Result()
		if err != nil {
			return nil, fmt.Errorf("topk list withcount: %w", err)
		}
		for i := range entries {
			entries[i].Count = counts[entries[i].Symbol]
		}
		// TOPK.LIST already orders by count; re-assert in case of
		// estimation jitter between the two reads.
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Count > entries[j].Count
		})
	}

	return entries, nil
}

// ResetWindow discards the sketch and reinitializes it empty.
func (e *Estimator) ResetWindow(ctx context.Context) error {
	if err := e.rdb.Del(ctx, e.cfg.Key).Err(); err != nil {
		return fmt.Errorf("topk del: %w", err)
	}
	return e.Reserve(ctx)
}

// Key returns the Redis key of the sketch (also the expiry marker).
func (e *Estimator) Key() string {
	return e.cfg.Key
}

func isMissingKey(err error) bool {
	if errors.Is(err, redis.Nil) {
		return true
	}
	return strings.Contains(err.Error(), "key does not exist")
}
