package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casebank/internal/api"
	"casebank/internal/config"
	"casebank/internal/economy"
	"casebank/internal/ledger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	store, err := ledger.Open(ctx, cfg.StoreDSN)
	if err != nil {
		logger.Error("open store failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	values, err := economy.ParseRarityValues(cfg.RarityValues)
	if err != nil {
		logger.Error("invalid rarity values", "err", err)
		os.Exit(1)
	}
	eng, err := economy.New(store, economy.Options{
		Logger:          logger,
		RarityValues:    values,
		VolatilityScale: economy.VolatilityScale(cfg.MarketVolatility),
	})
	if err != nil {
		logger.Error("engine init failed", "err", err)
		os.Exit(1)
	}

	report, err := eng.Prepare(ctx, cfg.SeedDefaults)
	if err != nil {
		logger.Error("store preparation failed", "err", err)
		os.Exit(1)
	}
	logger.Info("records migrated", "accounts", report.Accounts, "promos", report.Promos, "cases", report.Cases)

	admins := economy.NewAdminSet(cfg.AdminIDs...)
	if len(admins.IDs()) == 0 {
		logger.Warn("no administrators configured, admin routes will reject every caller")
	}

	server := api.New(cfg, logger, eng, admins)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("casebank api listening", "addr", cfg.Addr, "volatility", cfg.MarketVolatility)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
