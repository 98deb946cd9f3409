package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/fanout"
	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/feed"
	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/history"
	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/ingest"
	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/instrumentation"
	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/timeseries"
	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/trending"
	"github.com/redis-developer/redis-stack-stocks/cmd/streamd/internal/watchlist"
	"github.com/redis-developer/redis-stack-stocks/pkg/catalog"
	"github.com/redis-developer/redis-stack-stocks/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	metrics := instrumentation.NewMetrics()

	sink := timeseries.NewSink(rdb, logger)
	estimator := trending.NewEstimator(rdb, trending.Config{
		Key:    cfg.Trending.Key,
		Slots:  cfg.Trending.Slots,
		Width:  cfg.Trending.Width,
		Depth:  cfg.Trending.Depth,
		Decay:  cfg.Trending.Decay,
		Window: cfg.Trending.Window,
	}, logger)
	notifier := fanout.NewNotifier(rdb, logger)
	catalogStore := catalog.NewStore(rdb, logger)

	var firehose *fanout.Firehose
	if cfg.Kafka.Enabled {
		ensurer := fanout.NewTopicEnsurer(&fanout.NetDialer{Dialer: kafka.DefaultDialer}, logger)
		ensurer.Ensure(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		writer := fanout.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		firehose = fanout.NewFirehose(writer, logger)
		defer firehose.Close()
		logger.Info("firehose enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	normalizer := ingest.NewNormalizer(
		sink, estimator, notifier, catalogStore, firehose,
		cfg.Stream.NumWorkers, cfg.Stream.QueueSize,
		logger, metrics,
	)

	manager := feed.NewManager(feed.ManagerConfig{
		URL:               cfg.Alpaca.StreamURL,
		KeyID:             cfg.Alpaca.KeyID,
		SecretKey:         cfg.Alpaca.SecretKey,
		ReconnectBaseWait: cfg.Stream.ReconnectBaseWait,
		ReconnectMaxWait:  cfg.Stream.ReconnectMaxWait,
	}, normalizer, logger, metrics)

	apiClient := history.NewClient(cfg.Alpaca.DataURL, cfg.Alpaca.KeyID, cfg.Alpaca.SecretKey, logger)
	backfiller := history.NewBackfiller(apiClient, sink, catalogStore, history.Limits{
		Trades: cfg.Stream.BackfillTradeMax,
		Bars:   cfg.Stream.BackfillBarMax,
		News:   cfg.Stream.BackfillNewsMax,
	}, logger)

	repo := watchlist.NewRepository(rdb, watchlist.DefaultKey)
	syncer := watchlist.NewSyncer(
		repo, manager, backfiller,
		watchlist.RealClock{}, cfg.Stream.SettleDelay,
		logger, metrics,
	)

	// Fresh trending window on startup, then an initial reconcile.
	if err := estimator.ResetWindow(ctx); err != nil {
		logger.Error("trending window init failed", zap.Error(err))
	}
	syncer.Kick()

	// Workers use a context that survives feed shutdown so in-flight
	// writes can complete.
	normalizer.Start(context.Background())
	defer normalizer.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("feed manager starting", zap.String("url", cfg.Alpaca.StreamURL))
		return manager.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("subscription synchronizer starting",
			zap.Duration("settle_delay", cfg.Stream.SettleDelay))
		return syncer.Run(gctx)
	})

	g.Go(func() error {
		return runKeyspaceListener(gctx, rdb, cfg.Redis.DB, cfg.Trending.Key, estimator, syncer, logger)
	})

	g.Go(func() error {
		return runMetricsServer(gctx, cfg.App.MetricsPort, logger)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("streamd exited with error", zap.Error(err))
	}
	logger.Info("streamd stopped")
}

// runKeyspaceListener watches for two keyspace events: expiry of the
// trending sketch (ends the window, so reserve a fresh one) and any
// mutation of the watchlist set (re-read the whole set and reconcile).
func runKeyspaceListener(
	ctx context.Context,
	rdb *redis.Client,
	db int,
	trendingKey string,
	estimator *trending.Estimator,
	syncer *watchlist.Syncer,
	logger *zap.Logger,
) error {
	if err := rdb.ConfigSet(ctx, "notify-keyspace-events", "KEsx").Err(); err != nil {
		return fmt.Errorf("enable keyspace notifications: %w", err)
	}

	trendingChannel := fmt.Sprintf("__keyspace@%d__:%s", db, trendingKey)
	watchlistChannel := fmt.Sprintf("__keyspace@%d__:%s", db, watchlist.DefaultKey)

	pubsub := rdb.Subscribe(ctx, trendingChannel, watchlistChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			switch {
			case msg.Channel == trendingChannel && msg.Payload == "expired":
				logger.Debug("trending window expired, reserving fresh sketch")
				if err := estimator.ResetWindow(ctx); err != nil {
					logger.Error("trending window reset failed", zap.Error(err))
				}
			case msg.Channel == watchlistChannel:
				logger.Debug("watchlist changed", zap.String("event", msg.Payload))
				syncer.Kick()
			}
		}
	}
}

func runMetricsServer(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
