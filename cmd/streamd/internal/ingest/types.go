package ingest

import (
	"context"

	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/timeseries"
	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// Sink abstracts the time-series writes the normalizer performs.
type Sink interface {
	AppendBatch(ctx context.Context, points []timeseries.Point) error
}

// TrendRecorder abstracts the trending estimator. Record reports whether
// the event was counted (false when the window is between resets).
type TrendRecorder interface {
	Record(ctx context.Context, symbol string) (bool, error)
}

// Notifier abstracts the change-notification fan-out.
type Notifier interface {
	Trade(ctx context.Context, symbol string)
	Bar(ctx context.Context, symbol string)
	TrendingUpdated(ctx context.Context)
}

// NewsAppender abstracts the catalog's append-only news list.
type NewsAppender interface {
	AddNews(ctx context.Context, symbol string, item models.News) error
}

// EventPublisher mirrors normalized events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, typ models.EventType, symbol string, event interface{})
}
