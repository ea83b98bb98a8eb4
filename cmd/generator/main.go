package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/cmd/generator/internal/generator"
	"github.com/shubham-shewale/stock-dashboard/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()
	logger = logger.With(zap.String("env", cfg.App.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := generator.RealClock{}

	// Ensure the topic exists before writing
	tc := generator.NewTopicCreator(logger.Named("topic"), &generator.RealKafkaDialer{Dialer: &kafka.Dialer{Timeout: 5 * time.Second}}, clock)
	if err := tc.Ensure(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
		logger.Warn("Topic bootstrap incomplete, relying on broker auto-create", zap.Error(err))
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{}, // same key, same partition
		// Send batches to reduce network IO
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	}

	walk, err := generator.NewPriceWalk(logger.Named("walk"), writer, cfg.Generator, generator.NewRealRand(), clock)
	if err != nil {
		logger.Fatal("Invalid generator config", zap.Error(err))
	}

	walk.Run(ctx)
	logger.Info("Shutdown signal received")

	// Flush the async buffer
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
