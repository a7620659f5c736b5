package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type APIConfig struct {
	Addr             string        `env:"CASEBANK_API_ADDR" envDefault:":8080"`
	StoreDSN         string        `env:"CASEBANK_STORE_DSN" envDefault:"sqlite:casebank.db"`
	APIToken         string        `env:"CASEBANK_API_TOKEN"`
	AdminIDs         []int64       `env:"CASEBANK_ADMIN_IDS" envSeparator:","`
	RarityValues     string        `env:"CASEBANK_RARITY_VALUES"`
	MarketVolatility string        `env:"CASEBANK_MARKET_VOLATILITY" envDefault:"mor"`
	SeedDefaults     bool          `env:"CASEBANK_SEED_DEFAULTS" envDefault:"true"`
	RequestTimeout   time.Duration `env:"CASEBANK_REQUEST_TIMEOUT" envDefault:"15s"`
}

type WorkerConfig struct {
	StoreDSN         string        `env:"CASEBANK_STORE_DSN" envDefault:"sqlite:casebank.db"`
	AdminIDs         []int64       `env:"CASEBANK_ADMIN_IDS" envSeparator:","`
	TelegramToken    string        `env:"CASEBANK_TELEGRAM_TOKEN"`
	PriceSchedule    string        `env:"CASEBANK_PRICE_SCHEDULE" envDefault:"@every 5m"`
	AccrualSchedule  string        `env:"CASEBANK_ACCRUAL_SCHEDULE" envDefault:"0 0 1 * *"`
	OutboxEvery      time.Duration `env:"CASEBANK_OUTBOX_EVERY" envDefault:"10s"`
	OutboxBatch      int           `env:"CASEBANK_OUTBOX_BATCH" envDefault:"50"`
	RunOnce          bool          `env:"CASEBANK_WORKER_RUN_ONCE" envDefault:"false"`
	RarityValues     string        `env:"CASEBANK_RARITY_VALUES"`
	MarketVolatility string        `env:"CASEBANK_MARKET_VOLATILITY" envDefault:"mor"`
	SeedDefaults     bool          `env:"CASEBANK_SEED_DEFAULTS" envDefault:"true"`
}

type CLIConfig struct {
	APIBaseURL string `env:"CBK_API_BASE_URL" envDefault:"http://localhost:8080"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	cfg.StoreDSN = strings.TrimSpace(cfg.StoreDSN)
	cfg.APIToken = strings.TrimSpace(cfg.APIToken)
	cfg.MarketVolatility = normalizeVolatility(cfg.MarketVolatility)
	if cfg.APIToken == "" {
		return cfg, fmt.Errorf("CASEBANK_API_TOKEN is required")
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, fmt.Errorf("CASEBANK_REQUEST_TIMEOUT must be > 0")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.StoreDSN = strings.TrimSpace(cfg.StoreDSN)
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.MarketVolatility = normalizeVolatility(cfg.MarketVolatility)
	if cfg.OutboxEvery <= 0 {
		return cfg, fmt.Errorf("CASEBANK_OUTBOX_EVERY must be > 0")
	}
	if cfg.OutboxBatch <= 0 {
		cfg.OutboxBatch = 50
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := ParseEnv(&cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg
}

// normalizeVolatility lets the short VOLATILITY variable override the mode.
func normalizeVolatility(v string) string {
	if short := strings.TrimSpace(os.Getenv("VOLATILITY")); short != "" {
		v = short
	}
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "calm", "mor", "wild":
		return v
	default:
		return "mor"
	}
}
