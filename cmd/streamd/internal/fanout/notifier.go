// Package fanout publishes change notifications for presentation
// collaborators. Consumers re-query the sink or estimator on notification;
// payloads carry only the symbol (or an "updated" marker), never the data.
package fanout

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// Notification topics, shared with presentation consumers.
const (
	TopicTrade    = models.TopicTrade
	TopicBar      = models.TopicBar
	TopicTrending = models.TopicTrending
)

// Publisher abstracts the Redis publish command.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Notifier struct {
	rdb    Publisher
	logger *zap.Logger
}

func NewNotifier(rdb Publisher, logger *zap.Logger) *Notifier {
	return &Notifier{rdb: rdb, logger: logger}
}

// Trade announces that a trade for symbol was ingested.
func (n *Notifier) Trade(ctx context.Context, symbol string) {
	n.publish(ctx, TopicTrade, symbol)
}

// Bar announces that a bar for symbol was ingested.
func (n *Notifier) Bar(ctx context.Context, symbol string) {
	n.publish(ctx, TopicBar, symbol)
}

// TrendingUpdated announces that the trending ranking changed.
func (n *Notifier) TrendingUpdated(ctx context.Context) {
	n.publish(ctx, TopicTrending, "updated")
}

func (n *Notifier) publish(ctx context.Context, topic, payload string) {
	if err := n.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		n.logger.Warn("notification publish failed",
			zap.String("topic", topic),
			zap.String("payload", payload),
			zap.Error(err),
		)
	}
}
