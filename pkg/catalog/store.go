// Package catalog stores stock metadata records as RedisJSON documents.
// Records are created by the bulk loader; the streaming side only appends
// news to records that already exist.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// ErrNotFound is returned when no catalog record exists for a symbol.
var ErrNotFound = errors.New("catalog: stock not found")

// Client abstracts the RedisJSON commands the store uses.
type Client interface {
	JSONSet(ctx context.Context, key, path string, value interface{}) *redis.StatusCmd
	JSONGet(ctx context.Context, key string, paths ...string) *redis.JSONCmd
	JSONArrAppend(ctx context.Context, key, path string, values ...interface{}) *redis.IntSliceCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ Client = (*redis.Client)(nil)

type Store struct {
	rdb    Client
	logger *zap.Logger
}

func NewStore(rdb Client, logger *zap.Logger) *Store {
	return &Store{rdb: rdb, logger: logger}
}

// Put creates or replaces the record for a symbol.
func (s *Store) Put(ctx context.Context, rec models.StockRecord) error {
	if rec.News == nil {
		rec.News = []models.News{}
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal stock record: %w", err)
	}
	if err := s.rdb.JSONSet(ctx, models.StockKey(rec.Symbol), "$", string(doc)).Err(); err != nil {
		return fmt.Errorf("write stock record: %w", err)
	}
	return nil
}

// Get fetches the record for a symbol, or ErrNotFound.
func (s *Store) Get(ctx context.Context, symbol string) (*models.StockRecord, error) {
	raw, err := s.rdb.JSONGet(ctx, models.StockKey(symbol), "$").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read stock record: %w", err)
	}
	if raw == "" || raw == "[]" {
		return nil, ErrNotFound
	}

	// A "$" path query wraps the document in an array.
	var recs []models.StockRecord
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, fmt.Errorf("decode stock record: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// AddNews appends an article to a stock's news list. A missing record is a
// no-op rather than an error, and an article already present (by id) is
// skipped so redelivery stays idempotent.
func (s *Store) AddNews(ctx context.Context, symbol string, item models.News) error {
	key := models.StockKey(symbol)

	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check stock record: %w", err)
	}
	if n == 0 {
		s.logger.Debug("news for unknown symbol dropped", zap.String("symbol", symbol))
		return nil
	}

	raw, err := s.rdb.JSONGet(ctx, key, "$.news[*].id").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read news ids: %w", err)
	}
	if raw != "" {
		var ids []int64
		if err := json.Unmarshal([]byte(raw), &ids); err == nil {
			for _, id := range ids {
				if id == item.ID {
					return nil
				}
			}
		}
	}

	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal news: %w", err)
	}
	if err := s.rdb.JSONArrAppend(ctx, key, "$.news", string(doc)).Err(); err != nil {
		return fmt.Errorf("append news: %w", err)
	}
	return nil
}
