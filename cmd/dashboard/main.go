package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/chart"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/feed"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/ledger"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/session"
	"github.com/shubham-shewale/stock-dashboard/cmd/dashboard/internal/viewer"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the stream must be reachable before anything is served
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Feed.DialTimeout)
	src, err := feed.Dial(dialCtx, cfg.Feed.Endpoint, logger.Named("feed"), feed.Options{DialTimeout: cfg.Feed.DialTimeout})
	cancel()
	if err != nil {
		logger.Fatal("Failed to open stream", zap.String("endpoint", cfg.Feed.Endpoint), zap.Error(err))
	}

	l := ledger.New(decimal.NewFromFloat(cfg.Ledger.InitialBalance), ledger.RealClock{}, logger.Named("ledger"))
	sess := session.New(src, l, logger.Named("session"))

	hub := viewer.NewHub(sess, logger.Named("viewer"))
	sess.AddRenderer(hub)
	sess.AddRenderer(chart.LogRenderer{Logger: logger.Named("chart")})
	sess.AddObserver(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", viewer.ServeWS(hub, logger.Named("viewer")))
	mux.HandleFunc("/healthz", viewer.HealthHandler(hub))

	srv := &http.Server{Addr: cfg.Dashboard.Port, Handler: mux}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.Dashboard.Port), zap.String("feed", cfg.Feed.Endpoint))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-runErr:
		logger.Error("Session stopped", zap.Error(err))
	}

	// stream first, so no tick lands after this point
	if err := sess.Close(); err != nil {
		logger.Warn("Error closing stream", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown Complete")
}
