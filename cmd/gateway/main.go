package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-dashboard/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/stock-dashboard/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-dashboard/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/stock-dashboard/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("env", cfg.App.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	repo := repository.NewRedisStore(rdb)
	defer repo.Close()

	// Hub depends on the PriceStore interface, not Redis
	wsHub := hub.NewHub(ctx, repo, logger.Named("hub"))

	validTickers := make(map[string]bool)
	for _, t := range cfg.Gateway.ValidTickers {
		validTickers[t] = true
	}
	if cfg.Gateway.FeedSymbol != "" && !validTickers[cfg.Gateway.FeedSymbol] {
		logger.Warn("Feed symbol is not in valid_tickers; clients can still receive it but cannot subscribe to it",
			zap.String("symbol", cfg.Gateway.FeedSymbol))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("Upgrade failed", zap.Error(err))
			return
		}

		client := gateway.NewClient(conn, wsHub, logger, validTickers, cfg.Gateway.FeedSymbol)
		client.Start()
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := repo.Ping(pingCtx); err != nil {
			status, code = "redis unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      status,
			"feed_symbol": cfg.Gateway.FeedSymbol,
			"subscribers": wsHub.NumSubscribers(cfg.Gateway.FeedSymbol),
		})
	})

	srv := &http.Server{Addr: cfg.Gateway.Port, Handler: mux}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.Gateway.Port), zap.String("feed_symbol", cfg.Gateway.FeedSymbol))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsHub.Shutdown()
	srv.Shutdown(shutdownCtx)
	logger.Info("Shutdown Complete")
}
