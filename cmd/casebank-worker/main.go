package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"casebank/internal/config"
	"casebank/internal/economy"
	"casebank/internal/ledger"
	"casebank/internal/notify"
	"casebank/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
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

	var notifier economy.Notifier
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, logger)
		if err != nil {
			logger.Error("telegram init failed", "err", err)
			os.Exit(1)
		}
		notifier = tg
	} else {
		logger.Warn("CASEBANK_TELEGRAM_TOKEN not set, notifications go to the log")
		notifier = notify.NewLog(logger)
	}

	runner, err := worker.New(eng, notifier, logger, worker.Options{
		PriceSchedule:   cfg.PriceSchedule,
		AccrualSchedule: cfg.AccrualSchedule,
		OutboxEvery:     cfg.OutboxEvery,
		OutboxBatch:     cfg.OutboxBatch,
		Admins:          economy.NewAdminSet(cfg.AdminIDs...).IDs(),
	})
	if err != nil {
		logger.Error("worker init failed", "err", err)
		os.Exit(1)
	}

	if cfg.RunOnce {
		if err := runner.RunOnce(ctx); err != nil {
			logger.Error("run-once failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}
	if err := runner.Run(ctx); err != nil {
		logger.Error("worker failed", "err", err)
		os.Exit(1)
	}
}
