package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/paperstreet/brokerd/internal/auth"
	"github.com/paperstreet/brokerd/internal/compliance"
	"github.com/paperstreet/brokerd/internal/config"
	"github.com/paperstreet/brokerd/internal/domain"
	"github.com/paperstreet/brokerd/internal/engine"
	"github.com/paperstreet/brokerd/internal/feed"
	"github.com/paperstreet/brokerd/internal/handler"
	"github.com/paperstreet/brokerd/internal/ledger"
	"github.com/paperstreet/brokerd/internal/service"
	"github.com/paperstreet/brokerd/internal/store"
	"github.com/paperstreet/brokerd/internal/stream"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Stores and ledger.
	accounts := ledger.New()
	orderStore := store.NewOrderStore()
	tradeStore := store.NewTradeStore()

	// Market feed.
	symbols := domain.NewSymbolRegistry()
	sim := feed.NewSimulator(cfg.FeedInterval, cfg.FeedVolatility, symbols)

	// Engine.
	books := engine.NewBookManager()
	matcher := engine.NewMatcher(books, accounts, tradeStore)
	stops := engine.NewStopRegistry()

	// External collaborators.
	gate := compliance.NewGate(accounts, orderStore, cfg.MaxPositionShares, cfg.MaxOrdersPerMinute, logger)
	hub := stream.NewHub(logger)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	// Services.
	accountSvc := service.NewAccountService(accounts, tokens, cfg.StartingBalance)
	tradingSvc := service.NewTradingService(
		accounts, matcher, stops, orderStore, tradeStore,
		sim, gate, hub, symbols, logger,
	)

	// Price ticks drive stop triggers first, then the websocket fan-out.
	sim.Subscribe(stops.OnTick)
	sim.Subscribe(hub.PublishPriceTick)

	router := handler.NewRouter(accountSvc, tradingSvc, sim, hub, tokens, logger)

	// Start the feed with a cancellable context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, cancel context (stops the feed).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}
