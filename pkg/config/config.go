package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Alpaca   AlpacaConfig   `mapstructure:"alpaca"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Trending TrendingConfig `mapstructure:"trending"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
}

type AppConfig struct {
	MetricsPort string `mapstructure:"metrics_port"`
	Env         string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// AlpacaConfig holds credentials and endpoints for the upstream market feed.
type AlpacaConfig struct {
	StreamURL string `mapstructure:"stream_url"`
	DataURL   string `mapstructure:"data_url"`
	KeyID     string `mapstructure:"key_id"`
	SecretKey string `mapstructure:"secret_key"`
}

// StreamConfig tunes the ingestion pipeline and subscription synchronizer.
type StreamConfig struct {
	NumWorkers        int           `mapstructure:"num_workers"`
	QueueSize         int           `mapstructure:"queue_size"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	ReconnectBaseWait time.Duration `mapstructure:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `mapstructure:"reconnect_max_wait"`
	BackfillTradeMax  int           `mapstructure:"backfill_trade_max"`
	BackfillBarMax    int           `mapstructure:"backfill_bar_max"`
	BackfillNewsMax   int           `mapstructure:"backfill_news_max"`
}

// TrendingConfig shapes the top-k trending sketch and its reset window.
type TrendingConfig struct {
	Key    string        `mapstructure:"key"`
	Slots  int64         `mapstructure:"slots"`
	Width  int64         `mapstructure:"width"`
	Depth  int64         `mapstructure:"depth"`
	Decay  float64       `mapstructure:"decay"`
	Window time.Duration `mapstructure:"window"`
}

type GatewayConfig struct {
	Port         string   `mapstructure:"port"`
	ValidTickers []string `mapstructure:"valid_tickers"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults
	v.SetDefault("app.metrics_port", ":9100")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_events")

	v.SetDefault("alpaca.stream_url", "wss://stream.data.alpaca.markets/v2/iex")
	v.SetDefault("alpaca.data_url", "https://data.alpaca.markets")
	v.SetDefault("alpaca.key_id", "")
	v.SetDefault("alpaca.secret_key", "")

	v.SetDefault("stream.num_workers", 4)
	v.SetDefault("stream.queue_size", 256)
	v.SetDefault("stream.settle_delay", 3*time.Second)
	v.SetDefault("stream.reconnect_base_wait", time.Second)
	v.SetDefault("stream.reconnect_max_wait", time.Minute)
	v.SetDefault("stream.backfill_trade_max", 50)
	v.SetDefault("stream.backfill_bar_max", 1000)
	v.SetDefault("stream.backfill_news_max", 50)

	v.SetDefault("trending.key", "trending-stocks")
	v.SetDefault("trending.slots", 12)
	v.SetDefault("trending.width", 50)
	v.SetDefault("trending.depth", 4)
	v.SetDefault("trending.decay", 0.9)
	v.SetDefault("trending.window", 60*time.Second)

	v.SetDefault("gateway.port", ":8080")
	v.SetDefault("gateway.valid_tickers", []string{})

	// 3. Configure Viper to read Environment Variables
	// Maps dot-notation to underscores (e.g., "redis.addr" -> "REDIS_ADDR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys
	// Crucial for Viper to map flat Env Vars (REDIS_ADDR) to nested structs (Redis.Addr)
	bindEnv(v, "app.metrics_port", "app.env")
	bindEnv(v, "logger.level")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic")
	bindEnv(v, "alpaca.stream_url", "alpaca.data_url", "alpaca.key_id", "alpaca.secret_key")
	bindEnv(v, "stream.num_workers", "stream.queue_size", "stream.settle_delay",
		"stream.reconnect_base_wait", "stream.reconnect_max_wait",
		"stream.backfill_trade_max", "stream.backfill_bar_max", "stream.backfill_news_max")
	bindEnv(v, "trending.key", "trending.slots", "trending.width", "trending.depth",
		"trending.decay", "trending.window")
	bindEnv(v, "gateway.port", "gateway.valid_tickers")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	// 6. Basic Validation
	if cfg.Stream.NumWorkers <= 0 {
		return nil, fmt.Errorf("stream num_workers must be positive")
	}
	if cfg.Trending.Slots <= 0 {
		return nil, fmt.Errorf("trending slots must be positive")
	}

	return &cfg, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
