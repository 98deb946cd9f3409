// Package timeseries is the append-only per-symbol metric sink backed by
// RedisTimeSeries. Series are created lazily with last-value-wins
// deduplication on identical timestamps, so repeated writes of the same
// sample are idempotent.
package timeseries

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// ErrNoData marks a read that found nothing, as opposed to a store failure.
// Callers render both as empty but should count them separately.
var ErrNoData = errors.New("timeseries: no data")

type Sink struct {
	rdb    Client
	logger *zap.Logger
}

func NewSink(rdb Client, logger *zap.Logger) *Sink {
	return &Sink{rdb: rdb, logger: logger}
}

// EnsureSeries creates any of the given series that do not exist yet, with
// duplicate policy LAST and a symbol label for discovery. Creation is
// best-effort: a failure is logged and the remaining keys still get a try,
// since TS.ADD auto-creates series anyway.
func (s *Sink) EnsureSeries(ctx context.Context, symbol string, keys []string) {
	for _, key := range keys {
		n, err := s.rdb.Exists(ctx, key).Result()
		if err != nil {
			s.logger.Warn("series existence check failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if n > 0 {
			continue
		}
		err = s.rdb.TSCreateWithArgs(ctx, key, &redis.TSOptions{
			DuplicatePolicy: "LAST",
			Labels:          map[string]string{"symbol": symbol},
		}).Err()
		if err != nil {
			s.logger.Warn("series create failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Append writes a single sample.
func (s *Sink) Append(ctx context.Context, key string, tsMillis int64, value float64) error {
	if err := s.rdb.TSAdd(ctx, key, tsMillis, value).Err(); err != nil {
		return fmt.Errorf("ts add %s: %w", key, err)
	}
	return nil
}

// AppendBatch writes all points in one round trip.
func (s *Sink) AppendBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	ktv := make([][]interface{}, 0, len(points))
	for _, p := range points {
		ktv = append(ktv, []interface{}{p.Key, p.Timestamp, p.Value})
	}
	if err := s.rdb.TSMAdd(ctx, ktv).Err(); err != nil {
		return fmt.Errorf("ts madd: %w", err)
	}
	return nil
}

// Latest returns the most recent sample of a series, or ErrNoData.
func (s *Sink) Latest(ctx context.Context, key string) (models.Sample, error) {
	v, err := s.rdb.TSGet(ctx, key).Result()
	if err != nil {
		if isMissingKey(err) {
			return models.Sample{}, ErrNoData
		}
		return models.Sample{}, fmt.Errorf("ts get %s: %w", key, err)
	}
	if v.Timestamp == 0 {
		return models.Sample{}, ErrNoData
	}
	return models.Sample{Timestamp: v.Timestamp, Value: v.Value}, nil
}

// Range returns up to limit samples between from and to (milliseconds,
// inclusive), newest first when newestFirst is set. A missing series yields
// ErrNoData.
func (s *Sink) Range(ctx context.Context, key string, from, to int64, limit int, newestFirst bool) ([]models.Sample, error) {
	var cmd *redis.TSTimestampValueSliceCmd
	if newestFirst {
		cmd = s.rdb.TSRevRangeWithArgs(ctx, key, int(from), int(to), &redis.TSRevRangeOptions{Count: limit})
	} else {
		cmd = s.rdb.TSRangeWithArgs(ctx, key, int(from), int(to), &redis.TSRangeOptions{Count: limit})
	}

	vals, err := cmd.Result()
	if err != nil {
		if isMissingKey(err) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("ts range %s: %w", key, err)
	}

	samples := make([]models.Sample, 0, len(vals))
	for _, v := range vals {
		samples = append(samples, models.Sample{Timestamp: v.Timestamp, Value: v.Value})
	}
	return samples, nil
}

// isMissingKey reports whether err is RedisTimeSeries' missing-key error.
func isMissingKey(err error) bool {
	if errors.Is(err, redis.Nil) {
		return true
	}
	return strings.Contains(err.Error(), "key does not exist")
}
