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
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

type AppConfig struct {
	Env string `mapstructure:"env"` // e.g., "local", "prod"; tagged on every log line
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ProcessorConfig struct {
	NumWorkers  int           `mapstructure:"num_workers"`
	QueueSize   int           `mapstructure:"queue_size"`   // per worker; full queues drop
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"` // lifetime of the latest-tick key
}

// GeneratorConfig drives the synthetic single-symbol price walk.
type GeneratorConfig struct {
	Symbol    string        `mapstructure:"symbol"`
	BasePrice float64       `mapstructure:"base_price"`
	MaxStep   float64       `mapstructure:"max_step"`
	Interval  time.Duration `mapstructure:"interval"`
}

type GatewayConfig struct {
	Port         string   `mapstructure:"port"`
	ValidTickers []string `mapstructure:"valid_tickers"`
	FeedSymbol   string   `mapstructure:"feed_symbol"` // pushed to every socket on connect
}

// FeedConfig points the dashboard at the stream endpoint.
type FeedConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type LedgerConfig struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
}

type DashboardConfig struct {
	Port string `mapstructure:"port"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// .env is optional; real env vars always win over it
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "feed.endpoint" -> "FEED_ENDPOINT"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees nested keys that were bound explicitly
	bindEnv(v, "app.env")
	bindEnv(v, "logger.level", "logger.development")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "processor.num_workers", "processor.queue_size", "processor.snapshot_ttl")
	bindEnv(v, "generator.symbol", "generator.base_price", "generator.max_step", "generator.interval")
	bindEnv(v, "gateway.port", "gateway.valid_tickers", "gateway.feed_symbol")
	bindEnv(v, "feed.endpoint", "feed.dial_timeout")
	bindEnv(v, "ledger.initial_balance")
	bindEnv(v, "dashboard.port")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")
	v.SetDefault("kafka.group_id", "stock-processor-group")

	v.SetDefault("processor.num_workers", 4)
	v.SetDefault("processor.queue_size", 100)
	v.SetDefault("processor.snapshot_ttl", time.Hour)

	v.SetDefault("generator.symbol", "AAPL")
	v.SetDefault("generator.base_price", 150.0)
	v.SetDefault("generator.max_step", 0.5)
	v.SetDefault("generator.interval", 100*time.Millisecond)

	v.SetDefault("gateway.port", ":8082")
	v.SetDefault("gateway.valid_tickers", []string{"AAPL", "GOOG", "TSLA", "AMZN"})
	v.SetDefault("gateway.feed_symbol", "AAPL")

	v.SetDefault("feed.endpoint", "ws://localhost:8082/ws")
	v.SetDefault("feed.dial_timeout", 10*time.Second)

	v.SetDefault("ledger.initial_balance", 10000.0)

	v.SetDefault("dashboard.port", ":8090")
}

// Validate rejects configurations no binary can start with.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Processor.NumWorkers <= 0 {
		return fmt.Errorf("processor.num_workers must be positive, got %d", c.Processor.NumWorkers)
	}
	if c.Feed.Endpoint == "" {
		return fmt.Errorf("feed endpoint cannot be empty")
	}
	if c.Ledger.InitialBalance < 0 {
		return fmt.Errorf("ledger.initial_balance cannot be negative, got %v", c.Ledger.InitialBalance)
	}
	if c.Generator.Interval <= 0 {
		return fmt.Errorf("generator.interval must be positive")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
