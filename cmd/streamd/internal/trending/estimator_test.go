package trending_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/testutils"
	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/trending"
)

var _ trending.Client = (*testutils.MockTopKClient)(nil)

func newEstimator(rdb *testutils.MockTopKClient) *trending.Estimator {
	return trending.NewEstimator(rdb, trending.Config{
		Key:    "trending-stocks",
		Slots:  3,
		Width:  50,
		Depth:  4,
		Decay:  0.9,
		Window: time.Minute,
	}, zap.NewNop())
}

func TestEstimator_ReserveArmsExpiry(t *testing.T) {
	rdb := testutils.NewMockTopKClient()
	e := newEstimator(rdb)

	if err := e.Reserve(context.Background()); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if !rdb.Reserved {
		t.Error("Sketch should exist after Reserve")
	}
	if rdb.ExpireTTL != time.Minute {
		t.Errorf("Window TTL should be armed, got %v", rdb.ExpireTTL)
	}
}

func TestEstimator_RecordWithoutWindow(t *testing.T) {
	rdb := testutils.NewMockTopKClient()
	e := newEstimator(rdb)

	counted, err := e.Record(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if counted {
		t.Error("Nothing should be counted while the window is absent")
	}
}

func TestEstimator_RankingOrder(t *testing.T) {
	rdb := testutils.NewMockTopKClient()
	e := newEstimator(rdb)
	ctx := context.Background()

	if err := e.Reserve(ctx); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		e.Record(ctx, "TSLA")
	}
	for i := 0; i < 2; i++ {
		e.Record(ctx, "AAPL")
	}
	e.Record(ctx, "GOOG")

	entries, err := e.Snapshot(ctx, true)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %v", entries)
	}
	if entries[0].Symbol != "TSLA" || entries[0].Count != 5 {
		t.Errorf("Most traded should rank first, got %+v", entries[0])
	}
	if entries[2].Symbol != "GOOG" {
		t.Errorf("Least traded should rank last, got %+v", entries[2])
	}
}

func TestEstimator_RankingBounded(t *testing.T) {
	rdb := testutils.NewMockTopKClient()
	e := newEstimator(rdb)
	ctx := context.Background()

	e.Reserve(ctx)
	for i, sym := range []string{"A", "B", "C", "D", "E"} {
		for j := 0; j <= i; j++ {
			e.Record(ctx, sym)
		}
	}

	entries, err := e.Snapshot(ctx, false)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(entries) > 3 {
		t.Errorf("Ranking must not exceed its slot count, got %d entries", len(entries))
	}
}

func TestEstimator_SnapshotWithoutWindow(t *testing.T) {
	rdb := testutils.NewMockTopKClient()
	e := newEstimator(rdb)

	entries, err := e.Snapshot(context.Background(), true)
	if err != nil {
		t.Fatalf("Snapshot should tolerate a missing sketch: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Missing sketch means empty ranking, got %v", entries)
	}
}

func TestEstimator_ResetWindowStartsEmpty(t *testing.T) {
	rdb := testutils.NewMockTopKClient()
	e := newEstimator(rdb)
	ctx := context.Background()

	e.Reserve(ctx)
	e.Record(ctx, "AAPL")
	e.Record(ctx, "AAPL")

	if err := e.ResetWindow(ctx); err != nil {
		t.Fatalf("ResetWindow failed: %v", err)
	}

	entries, err := e.Snapshot(ctx, true)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Fresh window should be empty, got %v", entries)
	}
	if rdb.DelCount != 1 || rdb.ReserveCount != 2 {
		t.Errorf("Reset should discard and re-reserve, got del=%d reserve=%d", rdb.DelCount, rdb.ReserveCount)
	}

	counted, err := e.Record(ctx, "TSLA")
	if err != nil || !counted {
		t.Errorf("Fresh window should accept new counts, got %v/%v", counted, err)
	}
}
