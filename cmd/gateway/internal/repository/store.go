package repository

import (
	"context"
	"errors"

	"github.com/redis-developer/redis-stack-stocks/cmd/gateway/internal/protocol"
)

// ErrNoData reports that a series holds no samples yet, or does not exist
// at all. Callers treat it as "nothing to show", not a failure.
var ErrNoData = errors.New("repository: no data")

// MarketStore is the read model behind the hub: point lookups against the
// latest ingested values plus the change-notification stream that tells the
// hub when to re-query.
type MarketStore interface {
	LatestTrade(ctx context.Context, symbol string) (protocol.QuoteUpdate, error)
	LatestBar(ctx context.Context, symbol string) (protocol.BarUpdate, error)
	Trending(ctx context.Context) ([]protocol.TrendingEntry, error)
	RunPubSub(ctx context.Context, onEvent func(topic, payload string))
	Close() error
}
