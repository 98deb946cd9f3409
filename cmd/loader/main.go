package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/redis-developer/redis-stack-stocks/cmd/loader/internal/loader"
	"github.com/redis-developer/redis-stack-stocks/pkg/catalog"
	"github.com/redis-developer/redis-stack-stocks/pkg/config"
)

func main() {
	file := flag.String("file", "nasdaq.csv", "Path to the NASDAQ listing CSV")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal("Failed to open listing", zap.String("file", *file), zap.Error(err))
	}
	defer f.Close()

	store := catalog.NewStore(rdb, logger)
	l := loader.New(store, logger)

	loaded, skipped, err := l.Run(ctx, f)
	if err != nil {
		logger.Fatal("Load failed", zap.Error(err))
	}
	logger.Info("Load complete",
		zap.String("file", *file),
		zap.Int("loaded", loaded),
		zap.Int("skipped", skipped),
	)
}
