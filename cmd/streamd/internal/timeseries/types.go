package timeseries

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Client abstracts the RedisTimeSeries commands the sink uses.
type Client interface {
	TSCreateWithArgs(ctx context.Context, key string, options *redis.TSOptions) *redis.StatusCmd
	TSAdd(ctx context.Context, key string, timestamp interface{}, value float64) *redis.IntCmd
	TSMAdd(ctx context.Context, ktvSlices [][]interface{}) *redis.IntSliceCmd
	TSGet(ctx context.Context, key string) *redis.TSTimestampValueCmd
	TSRangeWithArgs(ctx context.Context, key string, fromTimestamp int, toTimestamp int, options *redis.TSRangeOptions) *redis.TSTimestampValueSliceCmd
	TSRevRangeWithArgs(ctx context.Context, key string, fromTimestamp int, toTimestamp int, options *redis.TSRevRangeOptions) *redis.TSTimestampValueSliceCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ Client = (*redis.Client)(nil)

// Point is one pending write: a sample addressed to a series key.
type Point struct {
	Key       string
	Timestamp int64 // milliseconds since epoch
	Value     float64
}
