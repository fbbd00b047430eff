package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kiwoom-gateway/config"
	"kiwoom-gateway/internal/gateway"
	"kiwoom-gateway/internal/kiwoom"
	"kiwoom-gateway/internal/logger"
	"kiwoom-gateway/internal/markethours"
	"kiwoom-gateway/internal/metrics"
	redisstore "kiwoom-gateway/internal/store/redis"
)

func main() {
	cfg := config.Load()
	log := logger.Init("gateway", logger.ParseLevel(cfg.LogLevel))
	log.Info("starting",
		slog.Bool("mock_mode", cfg.MockMode),
		slog.Bool("production", cfg.Production),
		slog.String("addr", cfg.GatewayAddr))

	m := metrics.New()
	health := metrics.NewHealthStatus(cfg.MockMode)

	// Optional upstream response cache
	var cache kiwoom.ResponseCache
	if cfg.RedisAddr != "" {
		c, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Warn("redis unavailable, caching disabled", slog.String("err", err.Error()))
		} else {
			defer c.Close()
			cache = c
		}
	}

	kiwoomCfg := kiwoom.Config{
		BaseURL:        cfg.BaseURL,
		AppKey:         cfg.AppKey,
		AppSecret:      cfg.AppSecret,
		CustomerType:   cfg.CustomerType,
		TRIDHistorical: cfg.TRIDHistorical,
		TRIDQuote:      cfg.TRIDQuote,
		MockMode:       cfg.MockMode,
		Production:     cfg.Production,
	}
	tokens := kiwoom.NewTokenSource(kiwoomCfg, log, m)
	client := kiwoom.NewClient(kiwoomCfg, tokens, cache, m, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// KRX session state, exposed via /healthz and the market gauge
	go trackMarketState(ctx, m, health)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	defer metricsSrv.Stop()

	server := gateway.NewServer(client, m, health, log)
	srv := &http.Server{
		Addr:        cfg.GatewayAddr,
		Handler:     server.Routes(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: /stream responses are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("gateway listening", slog.String("addr", cfg.GatewayAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	case <-sigterm:
		log.Info("shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown timed out, forcing exit", slog.String("err", err.Error()))
		srv.Close()
	}
	log.Info("stopped")
}

// trackMarketState keeps the market-state gauge and health flag in sync
// with the KRX session clock.
func trackMarketState(ctx context.Context, m *metrics.Metrics, health *metrics.HealthStatus) {
	update := func() {
		open := markethours.IsMarketOpen(time.Now())
		health.SetMarketOpen(open)
		if open {
			m.MarketState.Set(1)
		} else {
			m.MarketState.Set(0)
		}
	}
	update()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
