package repository

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/redis-developer/redis-stack-stocks/cmd/gateway/internal/protocol"
	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// Compile-time check to ensure RedisStore implements MarketStore
var _ MarketStore = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	pubsub *redis.PubSub
}

// NewRedisStore opens the store and subscribes to the three change
// topics. The subscription is fixed for the life of the process; per-client
// filtering happens in the hub.
func NewRedisStore(client *redis.Client) *RedisStore {
	ps := client.Subscribe(context.Background(),
		models.TopicTrade, models.TopicBar, models.TopicTrending)
	return &RedisStore{
		client: client,
		pubsub: ps,
	}
}

// LatestTrade returns the most recent trade price for a symbol.
func (r *RedisStore) LatestTrade(ctx context.Context, symbol string) (protocol.QuoteUpdate, error) {
	sample, err := r.latest(ctx, models.SeriesKey(symbol, models.CategoryTrades, models.FieldPrice))
	if err != nil {
		return protocol.QuoteUpdate{}, err
	}
	return protocol.QuoteUpdate{
		Symbol:    symbol,
		Price:     sample.Value,
		Timestamp: sample.Timestamp,
	}, nil
}

// LatestBar returns the most recent minute-bar close for a symbol.
func (r *RedisStore) LatestBar(ctx context.Context, symbol string) (protocol.BarUpdate, error) {
	sample, err := r.latest(ctx, models.SeriesKey(symbol, models.CategoryBars, models.FieldClose))
	if err != nil {
		return protocol.BarUpdate{}, err
	}
	return protocol.BarUpdate{
		Symbol:    symbol,
		Close:     sample.Value,
		Timestamp: sample.Timestamp,
	}, nil
}

func (r *RedisStore) latest(ctx context.Context, key string) (models.Sample, error) {
	tv, err := r.client.TSGet(ctx, key).Result()
	if err != nil {
		if isMissingKey(err) {
			return models.Sample{}, ErrNoData
		}
		return models.Sample{}, err
	}
	if tv.Timestamp == 0 {
		return models.Sample{}, ErrNoData
	}
	return models.Sample{Timestamp: tv.Timestamp, Value: tv.Value}, nil
}

// Trending returns the current ranking, most traded first. A missing sketch
// (between window resets) yields ErrNoData.
func (r *RedisStore) Trending(ctx context.Context) ([]protocol.TrendingEntry, error) {
	symbols, err := r.client.TopKList(ctx, models.TrendingKey).Result()
	if err != nil {
		if isMissingKey(err) {
			return nil, ErrNoData
		}
		return nil, err
	}
	counts, err := r.client.TopKListWithCount(ctx, models.TrendingKey).Result()
	if err != nil {
		if isMissingKey(err) {
			return nil, ErrNoData
		}
		return nil, err
	}

	entries := make([]protocol.TrendingEntry, 0, len(symbols))
	for _, sym := range symbols {
		entries = append(entries, protocol.TrendingEntry{Symbol: sym, Count: counts[sym]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries, nil
}

// RunPubSub is a blocking loop that reads change notifications from Redis
// and triggers the callback with the topic and its payload.
func (r *RedisStore) RunPubSub(ctx context.Context, onEvent func(topic, payload string)) {
	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			onEvent(msg.Channel, msg.Payload)
		}
	}
}

func (r *RedisStore) Close() error {
	if err := r.pubsub.Close(); err != nil {
		return err
	}
	return r.client.Close()
}

func isMissingKey(err error) bool {
	return errors.Is(err, redis.Nil) || strings.Contains(err.Error(), "key does not exist")
}
