package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/timeseries"
	"github.com/redis-developer/redis-stack-stocks/pkg/catalog"
	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

// Free-tier market data lags real time, so query windows end in the past.
const (
	recentLag    = 16 * time.Minute
	tradeBarSpan = 60 * time.Minute
	newsSpan     = 8 * 24 * time.Hour
)

// Limits bounds the size of each backfill batch.
type Limits struct {
	Trades int
	Bars   int
	News   int
}

// Backfiller seeds the sink and catalog with recent history for a symbol
// that is about to be subscribed.
type Backfiller struct {
	api     *Client
	sink    *timeseries.Sink
	catalog *catalog.Store
	limits  Limits
	now     func() time.Time
	logger  *zap.Logger
}

func NewBackfiller(api *Client, sink *timeseries.Sink, cat *catalog.Store, limits Limits, logger *zap.Logger) *Backfiller {
	return &Backfiller{
		api:     api,
		sink:    sink,
		catalog: cat,
		limits:  limits,
		now:     time.Now,
		logger:  logger,
	}
}

// Seed creates the symbol's series, loads a bounded batch of recent trades
// and bars into the sink, and seeds catalog news when the record has none.
// Partial failures abort with an error; the caller treats any error as
// best-effort and subscribes regardless.
func (b *Backfiller) Seed(ctx context.Context, symbol string) error {
	b.sink.EnsureSeries(ctx, symbol, []string{
		models.SeriesKey(symbol, models.CategoryTrades, models.FieldPrice),
		models.SeriesKey(symbol, models.CategoryTrades, models.FieldSize),
		models.SeriesKey(symbol, models.CategoryBars, models.FieldOpen),
		models.SeriesKey(symbol, models.CategoryBars, models.FieldHigh),
		models.SeriesKey(symbol, models.CategoryBars, models.FieldLow),
		models.SeriesKey(symbol, models.CategoryBars, models.FieldClose),
		models.SeriesKey(symbol, models.CategoryBars, models.FieldVolume),
	})

	end := b.now().UTC().Add(-recentLag)
	start := end.Add(-tradeBarSpan)

	trades, err := b.api.Trades(ctx, symbol, start, end, b.limits.Trades)
	if err != nil {
		return fmt.Errorf("backfill trades %s: %w", symbol, err)
	}
	bars, err := b.api.Bars(ctx, symbol, start, end, b.limits.Bars)
	if err != nil {
		return fmt.Errorf("backfill bars %s: %w", symbol, err)
	}

	points := make([]timeseries.Point, 0, 2*len(trades)+5*len(bars))
	for _, t := range trades {
		ts := t.Timestamp.UnixMilli()
		points = append(points,
			timeseries.Point{Key: models.SeriesKey(symbol, models.CategoryTrades, models.FieldPrice), Timestamp: ts, Value: t.Price},
			timeseries.Point{Key: models.SeriesKey(symbol, models.CategoryTrades, models.FieldSize), Timestamp: ts, Value: float64(t.Size)},
		)
	}
	for _, bar := range bars {
		ts := bar.Timestamp.UnixMilli()
		points = append(points,
			timeseries.Point{Key: models.SeriesKey(symbol, models.CategoryBars, models.FieldOpen), Timestamp: ts, Value: bar.Open},
			timeseries.Point{Key: models.SeriesKey(symbol, models.CategoryBars, models.FieldHigh), Timestamp: ts, Value: bar.High},
			timeseries.Point{Key: models.SeriesKey(symbol, models.CategoryBars, models.FieldLow), Timestamp: ts, Value: bar.Low},
			timeseries.Point{Key: models.SeriesKey(symbol, models.CategoryBars, models.FieldClose), Timestamp: ts, Value: bar.Close},
			timeseries.Point{Key: models.SeriesKey(symbol, models.CategoryBars, models.FieldVolume), Timestamp: ts, Value: float64(bar.Volume)},
		)
	}
	if err := b.sink.AppendBatch(ctx, points); err != nil {
		return fmt.Errorf("backfill write %s: %w", symbol, err)
	}

	b.seedNews(ctx, symbol)

	b.logger.Info("backfill complete",
		zap.String("symbol", symbol),
		zap.Int("trades", len(trades)),
		zap.Int("bars", len(bars)),
	)
	return nil
}

// seedNews fills a stock record's empty news list from history. A missing
// catalog record or a fetch failure only skips the seed.
func (b *Backfiller) seedNews(ctx context.Context, symbol string) {
	rec, err := b.catalog.Get(ctx, symbol)
	if err != nil || len(rec.News) > 0 {
		return
	}

	end := b.now().UTC().Add(-recentLag)
	items, err := b.api.News(ctx, symbol, end.Add(-newsSpan), end, b.limits.News)
	if err != nil {
		b.logger.Warn("news backfill failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	for _, item := range items {
		if err := b.catalog.AddNews(ctx, symbol, item); err != nil {
			b.logger.Warn("news seed write failed", zap.String("symbol", symbol), zap.Error(err))
			return
		}
	}
}
