package ingest_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/ingest"
	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/testutils"
	"github.com/redis-developer/redis-stack-stocks/pkg/models"
)

type fixture struct {
	sink     *testutils.SpySink
	trends   *testutils.SpyTrends
	notifier *testutils.SpyNotifier
	news     *testutils.SpyNewsAppender
	firehose *testutils.SpyEventPublisher
	norm     *ingest.Normalizer
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		sink:     &testutils.SpySink{},
		trends:   &testutils.SpyTrends{Counted: true},
		notifier: &testutils.SpyNotifier{},
		news:     &testutils.SpyNewsAppender{},
		firehose: &testutils.SpyEventPublisher{},
	}
	f.norm = ingest.NewNormalizer(f.sink, f.trends, f.notifier, f.news, f.firehose, 2, 16, zap.NewNop(), nil)
	f.norm.Start(context.Background())
	t.Cleanup(f.norm.Stop)
	return f
}

func eventually(t *testing.T, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNormalizer_Trade(t *testing.T) {
	f := newFixture(t)
	when := time.UnixMilli(1700000000000)

	f.norm.OnTrade(models.Trade{Symbol: "AAPL", Price: 150.25, Size: 100, Timestamp: when})

	eventually(t, func() bool {
		f.notifier.Mu.Lock()
		defer f.notifier.Mu.Unlock()
		return len(f.notifier.Trades) == 1
	}, "Trade notification should fire exactly once")

	points := f.sink.AllPoints()
	if len(points) != 2 {
		t.Fatalf("A trade writes price and size, got %v", points)
	}
	byKey := map[string]float64{}
	for _, p := range points {
		if p.Timestamp != 1700000000000 {
			t.Errorf("Sample timestamps must be the event time in ms, got %d", p.Timestamp)
		}
		byKey[p.Key] = p.Value
	}
	if byKey["stocks:AAPL:trades:price"] != 150.25 {
		t.Errorf("Price sample wrong: %v", byKey)
	}
	if byKey["stocks:AAPL:trades:size"] != 100 {
		t.Errorf("Size sample wrong: %v", byKey)
	}

	f.trends.Mu.Lock()
	recorded := append([]string(nil), f.trends.Recorded...)
	f.trends.Mu.Unlock()
	if len(recorded) != 1 || recorded[0] != "AAPL" {
		t.Errorf("Trade should count toward trending, got %v", recorded)
	}

	f.notifier.Mu.Lock()
	trendingUpdates := f.notifier.TrendingUpdates
	f.notifier.Mu.Unlock()
	if trendingUpdates != 1 {
		t.Errorf("Counted trade should announce a trending update, got %d", trendingUpdates)
	}
}

func TestNormalizer_TradeNotCountedSkipsTrendingUpdate(t *testing.T) {
	f := newFixture(t)
	f.trends.Mu.Lock()
	f.trends.Counted = false
	f.trends.Mu.Unlock()

	f.norm.OnTrade(models.Trade{Symbol: "AAPL", Price: 1, Size: 1, Timestamp: time.Now()})

	eventually(t, func() bool {
		f.notifier.Mu.Lock()
		defer f.notifier.Mu.Unlock()
		return len(f.notifier.Trades) == 1
	}, "Trade notification should still fire")

	f.notifier.Mu.Lock()
	defer f.notifier.Mu.Unlock()
	if f.notifier.TrendingUpdates != 0 {
		t.Errorf("Uncounted trade must not announce trending, got %d", f.notifier.TrendingUpdates)
	}
}

func TestNormalizer_Bar(t *testing.T) {
	f := newFixture(t)
	when := time.UnixMilli(1700000060000)

	f.norm.OnBar(models.Bar{
		Symbol: "TSLA", Open: 700, High: 710, Low: 695, Close: 705,
		Volume: 12000, Timestamp: when,
	})

	eventually(t, func() bool {
		f.notifier.Mu.Lock()
		defer f.notifier.Mu.Unlock()
		return len(f.notifier.Bars) == 1
	}, "Bar notification should fire")

	points := f.sink.AllPoints()
	if len(points) != 5 {
		t.Fatalf("A bar writes OHLCV, got %d points", len(points))
	}
	byKey := map[string]float64{}
	for _, p := range points {
		byKey[p.Key] = p.Value
	}
	if byKey["stocks:TSLA:bars:close"] != 705 || byKey["stocks:TSLA:bars:volume"] != 12000 {
		t.Errorf("Bar fields wrong: %v", byKey)
	}

	f.trends.Mu.Lock()
	defer f.trends.Mu.Unlock()
	if len(f.trends.Recorded) != 0 {
		t.Errorf("Bars must not count toward trending, got %v", f.trends.Recorded)
	}
}

func TestNormalizer_Quote(t *testing.T) {
	f := newFixture(t)

	f.norm.OnQuote(models.Quote{
		Symbol: "AAPL", BidPrice: 150.0, BidSize: 3, AskPrice: 150.1, AskSize: 5,
		Timestamp: time.UnixMilli(1700000000500),
	})

	eventually(t, func() bool {
		return len(f.sink.AllPoints()) == 4
	}, "A quote writes bid/ask price and size")

	f.notifier.Mu.Lock()
	defer f.notifier.Mu.Unlock()
	if len(f.notifier.Trades) != 0 || len(f.notifier.Bars) != 0 {
		t.Error("Quotes do not trigger per-symbol notifications")
	}
}

func TestNormalizer_NewsFansOutToAllSymbols(t *testing.T) {
	f := newFixture(t)

	f.norm.OnNews(models.News{
		ID:       42,
		Headline: "Chipmakers rally",
		Symbols:  []string{"NVDA", "AMD"},
	})

	eventually(t, func() bool {
		f.news.Mu.Lock()
		defer f.news.Mu.Unlock()
		return len(f.news.Added) == 2
	}, "News should append to every mentioned symbol")

	f.news.Mu.Lock()
	defer f.news.Mu.Unlock()
	for _, entry := range f.news.Added {
		if !strings.HasSuffix(entry, ":Chipmakers rally") {
			t.Errorf("Unexpected news append: %v", f.news.Added)
		}
	}
}

func TestNormalizer_MirrorsToFirehose(t *testing.T) {
	f := newFixture(t)

	f.norm.OnTrade(models.Trade{Symbol: "AAPL", Price: 1, Size: 1, Timestamp: time.Now()})
	f.norm.OnBar(models.Bar{Symbol: "AAPL", Timestamp: time.Now()})

	eventually(t, func() bool {
		f.firehose.Mu.Lock()
		defer f.firehose.Mu.Unlock()
		return len(f.firehose.Published) == 2
	}, "Both events should mirror downstream")

	f.firehose.Mu.Lock()
	defer f.firehose.Mu.Unlock()
	seen := map[string]bool{}
	for _, p := range f.firehose.Published {
		seen[p] = true
	}
	if !seen["trade/AAPL"] || !seen["bar/AAPL"] {
		t.Errorf("Expected trade and bar mirrors, got %v", f.firehose.Published)
	}
}

func TestNormalizer_EnqueueAfterStopIsNoop(t *testing.T) {
	f := &fixture{
		sink:     &testutils.SpySink{},
		trends:   &testutils.SpyTrends{},
		notifier: &testutils.SpyNotifier{},
		news:     &testutils.SpyNewsAppender{},
		firehose: &testutils.SpyEventPublisher{},
	}
	f.norm = ingest.NewNormalizer(f.sink, f.trends, f.notifier, f.news, f.firehose, 1, 4, zap.NewNop(), nil)
	f.norm.Start(context.Background())
	f.norm.Stop()

	f.norm.OnTrade(models.Trade{Symbol: "AAPL", Price: 1, Size: 1, Timestamp: time.Now()})

	if got := f.sink.AllPoints(); len(got) != 0 {
		t.Errorf("Events after Stop must be discarded, got %v", got)
	}
}
