package config_test

import (
	"testing"
	"time"

	"github.com/redis-developer/redis-stack-stocks/pkg/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Unexpected redis addr: %s", cfg.Redis.Addr)
	}
	if cfg.Kafka.Enabled {
		t.Error("Kafka mirroring should be off by default")
	}
	if cfg.Stream.SettleDelay != 3*time.Second {
		t.Errorf("Unexpected settle delay: %v", cfg.Stream.SettleDelay)
	}
	if cfg.Trending.Key != "trending-stocks" || cfg.Trending.Slots != 12 {
		t.Errorf("Unexpected trending defaults: %+v", cfg.Trending)
	}
	if cfg.Trending.Window != 60*time.Second {
		t.Errorf("Unexpected trending window: %v", cfg.Trending.Window)
	}
	if cfg.Gateway.Port != ":8080" {
		t.Errorf("Unexpected gateway port: %s", cfg.Gateway.Port)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis-stack:6380")
	t.Setenv("STREAM_NUM_WORKERS", "8")
	t.Setenv("TRENDING_WINDOW", "5m")
	t.Setenv("ALPACA_KEY_ID", "test-key")

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Redis.Addr != "redis-stack:6380" {
		t.Errorf("REDIS_ADDR should override, got %s", cfg.Redis.Addr)
	}
	if cfg.Stream.NumWorkers != 8 {
		t.Errorf("STREAM_NUM_WORKERS should override, got %d", cfg.Stream.NumWorkers)
	}
	if cfg.Trending.Window != 5*time.Minute {
		t.Errorf("TRENDING_WINDOW should parse a duration, got %v", cfg.Trending.Window)
	}
	if cfg.Alpaca.KeyID != "test-key" {
		t.Errorf("ALPACA_KEY_ID should override, got %s", cfg.Alpaca.KeyID)
	}
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	t.Setenv("STREAM_NUM_WORKERS", "0")

	if _, err := config.LoadConfig(); err == nil {
		t.Fatal("Zero workers should be rejected")
	}
}
