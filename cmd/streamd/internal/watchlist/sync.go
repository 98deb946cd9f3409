package watchlist

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/instrumentation"
)

// Feed is the subscription surface of the connection manager. Calls are
// fire-and-forget, best-effort.
type Feed interface {
	Subscribe(ctx context.Context, symbols []string)
	Unsubscribe(ctx context.Context, symbols []string)
	Active() []string
}

// Backfiller seeds history for a newly watched symbol.
type Backfiller interface {
	Seed(ctx context.Context, symbol string) error
}

// WatchRepository reads the desired watch-set.
type WatchRepository interface {
	Members(ctx context.Context) ([]string, error)
}

// Clock abstracts time for deterministic testing.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// Syncer serializes reconcile passes: external triggers coalesce through a
// one-slot kick channel, so at most one reconcile is ever in flight and a
// burst of watch-set changes collapses into a single re-read.
type Syncer struct {
	repo     WatchRepository
	feed     Feed
	backfill Backfiller
	clock    Clock
	settle   time.Duration
	logger   *zap.Logger
	metrics  *instrumentation.Metrics

	kick chan struct{}
}

func NewSyncer(
	repo WatchRepository,
	feed Feed,
	backfill Backfiller,
	clock Clock,
	settle time.Duration,
	logger *zap.Logger,
	metrics *instrumentation.Metrics,
) *Syncer {
	return &Syncer{
		repo:     repo,
		feed:     feed,
		backfill: backfill,
		clock:    clock,
		settle:   settle,
		logger:   logger,
		metrics:  metrics,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests a reconcile pass. Safe from any goroutine; a pending
// request absorbs further kicks.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run processes reconcile requests until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.kick:
			s.Reconcile(ctx)
		}
	}
}

// Reconcile diffs the desired watch-set against the feed's active
// subscriptions and converges them. Removals go first; additions are
// backfilled before the live subscription so there is no visible gap
// between "subscribed" and "has data". Backfill failures only log: live
// data still flows.
func (s *Syncer) Reconcile(ctx context.Context) {
	desired, err := s.repo.Members(ctx)
	if err != nil {
		s.logger.Error("watchlist read failed, skipping reconcile", zap.Error(err))
		return
	}
	s.metrics.RecordReconcile()

	desiredSet := make(map[string]struct{}, len(desired))
	for _, sym := range desired {
		desiredSet[sym] = struct{}{}
	}

	active := s.feed.Active()
	activeSet := make(map[string]struct{}, len(active))
	for _, sym := range active {
		activeSet[sym] = struct{}{}
	}

	var toRemove, toAdd []string
	for _, sym := range active {
		if _, ok := desiredSet[sym]; !ok {
			toRemove = append(toRemove, sym)
		}
	}
	for sym := range desiredSet {
		if _, ok := activeSet[sym]; !ok {
			toAdd = append(toAdd, sym)
		}
	}
	sort.Strings(toRemove)
	sort.Strings(toAdd)

	if len(toRemove) == 0 && len(toAdd) == 0 {
		s.logger.Debug("watch-set already converged", zap.Int("symbols", len(desired)))
		return
	}

	s.logger.Info("reconciling watch-set",
		zap.Strings("add", toAdd),
		zap.Strings("remove", toRemove),
	)

	if len(toRemove) > 0 {
		s.feed.Unsubscribe(ctx, toRemove)
	}

	for _, sym := range toAdd {
		if err := s.backfill.Seed(ctx, sym); err != nil {
			s.metrics.RecordBackfillError()
			s.logger.Warn("backfill failed, subscribing anyway",
				zap.String("symbol", sym),
				zap.Error(err),
			)
		}
	}
	if len(toAdd) > 0 {
		s.feed.Subscribe(ctx, toAdd)
	}

	// Let the subscription changes settle before the next pass can start.
	// Only this loop pauses; the rest of the pipeline keeps flowing.
	s.clock.Sleep(s.settle)
}
