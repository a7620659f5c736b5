package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"CASEBANK_API_ADDR", "CASEBANK_STORE_DSN", "CASEBANK_MARKET_VOLATILITY", "CASEBANK_SEED_DEFAULTS", "CASEBANK_REQUEST_TIMEOUT"} {
		unsetEnv(t, key)
	}
	t.Setenv("CASEBANK_API_TOKEN", "secret")
	t.Setenv("PORT", "")
	t.Setenv("VOLATILITY", "")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.StoreDSN != "sqlite:casebank.db" {
		t.Fatalf("dsn = %q", cfg.StoreDSN)
	}
	if cfg.MarketVolatility != "mor" || !cfg.SeedDefaults || cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadAPIFromEnvOverrides(t *testing.T) {
	t.Setenv("CASEBANK_API_TOKEN", "secret")
	t.Setenv("PORT", "9000")
	t.Setenv("CASEBANK_ADMIN_IDS", "1,22")
	t.Setenv("VOLATILITY", "WILD")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if len(cfg.AdminIDs) != 2 || cfg.AdminIDs[0] != 1 || cfg.AdminIDs[1] != 22 {
		t.Fatalf("admin ids = %v", cfg.AdminIDs)
	}
	if cfg.MarketVolatility != "wild" {
		t.Fatalf("volatility = %q", cfg.MarketVolatility)
	}
}

func TestLoadAPIFromEnvRequiresToken(t *testing.T) {
	t.Setenv("CASEBANK_API_TOKEN", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatal("expected missing token error")
	}
}

func TestLoadWorkerFromEnv(t *testing.T) {
	unsetEnv(t, "CASEBANK_OUTBOX_EVERY")
	unsetEnv(t, "CASEBANK_PRICE_SCHEDULE")
	t.Setenv("CASEBANK_WORKER_RUN_ONCE", "true")
	t.Setenv("VOLATILITY", "")
	t.Setenv("CASEBANK_MARKET_VOLATILITY", "bogus")

	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.RunOnce || cfg.OutboxEvery != 10*time.Second || cfg.PriceSchedule != "@every 5m" {
		t.Fatalf("unexpected worker config: %+v", cfg)
	}
	if cfg.MarketVolatility != "mor" {
		t.Fatalf("volatility = %q", cfg.MarketVolatility)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("CASEBANK_OUTBOX_EVERY", "soon")
	_, err := LoadWorkerFromEnv()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("CBK_API_BASE_URL", "http://example.test/")
	if got := LoadCLIFromEnv().APIBaseURL; got != "http://example.test" {
		t.Fatalf("base url = %q", got)
	}
}
