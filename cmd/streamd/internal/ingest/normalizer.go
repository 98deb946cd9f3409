// Package ingest normalizes raw feed events into time-series points,
// trending counts, catalog news, and change notifications.
//
// Events are dispatched to a fixed worker pool sharded by symbol hash:
// per-symbol receipt order is preserved while a slow write for one symbol
// never delays delivery for another. Channels are bounded; under burst the
// newest event for a saturated shard is dropped with a diagnostic.
package ingest

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/instrumentation"
	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/timeseries"
	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

type task struct {
	kind  models.EventType
	trade models.Trade
	bar   models.Bar
	quote models.Quote
	news  models.News
}

type Normalizer struct {
	sink     Sink
	trends   TrendRecorder
	notifier Notifier
	catalog  NewsAppender
	firehose EventPublisher
	logger   *zap.Logger
	metrics  *instrumentation.Metrics

	numWorkers int
	queueSize  int

	mu      sync.Mutex
	workers []chan task
	wg      sync.WaitGroup
	ctx     context.Context
}

func NewNormalizer(
	sink Sink,
	trends TrendRecorder,
	notifier Notifier,
	cat NewsAppender,
	firehose EventPublisher,
	numWorkers, queueSize int,
	logger *zap.Logger,
	metrics *instrumentation.Metrics,
) *Normalizer {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Normalizer{
		sink:       sink,
		trends:     trends,
		notifier:   notifier,
		catalog:    cat,
		firehose:   firehose,
		logger:     logger,
		metrics:    metrics,
		numWorkers: numWorkers,
		queueSize:  queueSize,
	}
}

// Start launches the worker pool. Workers use ctx for their writes; it
// should outlive the feed so in-flight writes can complete on shutdown.
func (n *Normalizer) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.ctx = ctx
	n.workers = make([]chan task, n.numWorkers)
	for i := 0; i < n.numWorkers; i++ {
		n.workers[i] = make(chan task, n.queueSize)
		n.wg.Add(1)
		go n.worker(i, n.workers[i])
	}
}

// Stop closes the queues and waits for workers to drain.
func (n *Normalizer) Stop() {
	n.mu.Lock()
	workers := n.workers
	n.workers = nil
	n.mu.Unlock()

	for _, ch := range workers {
		close(ch)
	}
	n.wg.Wait()
}

func (n *Normalizer) OnTrade(trade models.Trade) {
	n.enqueue(trade.Symbol, task{kind: models.EventTrade, trade: trade})
}

func (n *Normalizer) OnBar(bar models.Bar) {
	n.enqueue(bar.Symbol, task{kind: models.EventBar, bar: bar})
}

func (n *Normalizer) OnQuote(quote models.Quote) {
	n.enqueue(quote.Symbol, task{kind: models.EventQuote, quote: quote})
}

func (n *Normalizer) OnNews(news models.News) {
	// News is rare; shard by the first symbol.
	n.enqueue(news.Symbols[0], task{kind: models.EventNews, news: news})
}

// enqueue routes a task to the symbol's shard without blocking the feed's
// delivery loop. A full shard drops the event.
func (n *Normalizer) enqueue(symbol string, t task) {
	n.mu.Lock()
	workers := n.workers
	n.mu.Unlock()

	if workers == nil {
		return
	}

	id := shardFor(symbol, len(workers))
	select {
	case workers[id] <- t:
	default:
		n.metrics.RecordDrop("queue")
		n.logger.Warn("worker queue full, dropping event",
			zap.String("symbol", symbol),
			zap.String("type", string(t.kind)),
			zap.Int("worker_id", id),
		)
	}
}

func (n *Normalizer) worker(id int, tasks <-chan task) {
	defer n.wg.Done()

	for t := range tasks {
		switch t.kind {
		case models.EventTrade:
			n.processTrade(t.trade)
		case models.EventBar:
			n.processBar(t.bar)
		case models.EventQuote:
			n.processQuote(t.quote)
		case models.EventNews:
			n.processNews(t.news)
		}
		n.metrics.RecordEvent(string(t.kind))
	}
}

func (n *Normalizer) processTrade(trade models.Trade) {
	ctx := n.ctx
	ts := trade.Timestamp.UnixMilli()

	start := time.Now()
	err := n.sink.AppendBatch(ctx, []timeseries.Point{
		{Key: models.SeriesKey(trade.Symbol, models.CategoryTrades, models.FieldPrice), Timestamp: ts, Value: trade.Price},
		{Key: models.SeriesKey(trade.Symbol, models.CategoryTrades, models.FieldSize), Timestamp: ts, Value: float64(trade.Size)},
	})
	n.metrics.ObserveWriteLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		n.logger.Error("trade write failed", zap.String("symbol", trade.Symbol), zap.Error(err))
	}

	recorded, err := n.trends.Record(ctx, trade.Symbol)
	if err != nil {
		n.logger.Warn("trending record failed", zap.String("symbol", trade.Symbol), zap.Error(err))
	} else if recorded {
		n.notifier.TrendingUpdated(ctx)
	}

	n.notifier.Trade(ctx, trade.Symbol)
	n.firehose.Publish(ctx, models.EventTrade, trade.Symbol, trade)
}

func (n *Normalizer) processBar(bar models.Bar) {
	ctx := n.ctx
	ts := bar.Timestamp.UnixMilli()

	start := time.Now()
	err := n.sink.AppendBatch(ctx, []timeseries.Point{
		{Key: models.SeriesKey(bar.Symbol, models.CategoryBars, models.FieldOpen), Timestamp: ts, Value: bar.Open},
		{Key: models.SeriesKey(bar.Symbol, models.CategoryBars, models.FieldHigh), Timestamp: ts, Value: bar.High},
		{Key: models.SeriesKey(bar.Symbol, models.CategoryBars, models.FieldLow), Timestamp: ts, Value: bar.Low},
		{Key: models.SeriesKey(bar.Symbol, models.CategoryBars, models.FieldClose), Timestamp: ts, Value: bar.Close},
		{Key: models.SeriesKey(bar.Symbol, models.CategoryBars, models.FieldVolume), Timestamp: ts, Value: float64(bar.Volume)},
	})
	n.metrics.ObserveWriteLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		n.logger.Error("bar write failed", zap.String("symbol", bar.Symbol), zap.Error(err))
	}

	n.notifier.Bar(ctx, bar.Symbol)
	n.firehose.Publish(ctx, models.EventBar, bar.Symbol, bar)
}

func (n *Normalizer) processQuote(quote models.Quote) {
	ctx := n.ctx
	ts := quote.Timestamp.UnixMilli()

	err := n.sink.AppendBatch(ctx, []timeseries.Point{
		{Key: models.SeriesKey(quote.Symbol, models.CategoryQuotes, models.FieldBidPrice), Timestamp: ts, Value: quote.BidPrice},
		{Key: models.SeriesKey(quote.Symbol, models.CategoryQuotes, models.FieldBidSize), Timestamp: ts, Value: float64(quote.BidSize)},
		{Key: models.SeriesKey(quote.Symbol, models.CategoryQuotes, models.FieldAskPrice), Timestamp: ts, Value: quote.AskPrice},
		{Key: models.SeriesKey(quote.Symbol, models.CategoryQuotes, models.FieldAskSize), Timestamp: ts, Value: float64(quote.AskSize)},
	})
	if err != nil {
		n.logger.Error("quote write failed", zap.String("symbol", quote.Symbol), zap.Error(err))
	}

	n.firehose.Publish(ctx, models.EventQuote, quote.Symbol, quote)
}

func (n *Normalizer) processNews(news models.News) {
	ctx := n.ctx
	for _, sym := range news.Symbols {
		if err := n.catalog.AddNews(ctx, sym, news); err != nil {
			n.logger.Warn("news append failed", zap.String("symbol", sym), zap.Error(err))
		}
	}
	n.firehose.Publish(ctx, models.EventNews, news.Symbols[0], news)
}

// shardFor maps a symbol deterministically onto a worker so per-symbol
// ordering is preserved.
func shardFor(symbol string, numWorkers int) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32()) % numWorkers
}
