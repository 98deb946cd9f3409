// Package watchlist reconciles the externally controlled watch-set against
// the feed's active subscriptions.
package watchlist

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis set holding the desired watch-set.
const DefaultKey = "watchlist"

// SetClient abstracts the Redis set read.
type SetClient interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// Repository reads the desired watch-set. Mutation happens elsewhere (the
// query API); the synchronizer only ever re-reads the whole set.
type Repository struct {
	rdb SetClient
	key string
}

func NewRepository(rdb SetClient, key string) *Repository {
	if key == "" {
		key = DefaultKey
	}
	return &Repository{rdb: rdb, key: key}
}

// Members returns the watch-set, normalized to uppercase.
func (r *Repository) Members(ctx context.Context) ([]string, error) {
	members, err := r.rdb.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	symbols := make([]string, 0, len(members))
	for _, m := range members {
		sym := strings.ToUpper(strings.TrimSpace(m))
		if sym != "" {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}
