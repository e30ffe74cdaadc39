package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/recurring")
	t.Setenv("LEDGER_SERVICE_URL", "http://localhost:8083")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.ServerPort != "8087" {
		t.Errorf("expected default port 8087, got %s", cfg.ServerPort)
	}
	if cfg.EventExchange != "transfa.events" {
		t.Errorf("expected default exchange transfa.events, got %s", cfg.EventExchange)
	}
	if cfg.DueScanSchedule != "0 * * * *" {
		t.Errorf("expected hourly due-scan default, got %s", cfg.DueScanSchedule)
	}
	if cfg.ExecutionRetryLimit != 3 {
		t.Errorf("expected default retry limit 3, got %d", cfg.ExecutionRetryLimit)
	}
	if cfg.MaxConcurrentExecutions != 8 {
		t.Errorf("expected default concurrency 8, got %d", cfg.MaxConcurrentExecutions)
	}
	if cfg.LedgerTimeoutSeconds != 30 {
		t.Errorf("expected default ledger timeout 30s, got %d", cfg.LedgerTimeoutSeconds)
	}
	if cfg.RetrySweepBatchSize != 100 {
		t.Errorf("expected default sweep batch size 100, got %d", cfg.RetrySweepBatchSize)
	}
	if cfg.ClaimTTLMinutes != 15 {
		t.Errorf("expected default claim TTL 15 minutes, got %d", cfg.ClaimTTLMinutes)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/recurring")
	t.Setenv("LEDGER_SERVICE_URL", "http://localhost:8083")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DUE_SCAN_SCHEDULE", "*/5 * * * *")
	t.Setenv("EXECUTION_RETRY_LIMIT", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.ServerPort)
	}
	if cfg.DueScanSchedule != "*/5 * * * *" {
		t.Errorf("expected overridden due-scan schedule, got %s", cfg.DueScanSchedule)
	}
	if cfg.ExecutionRetryLimit != 5 {
		t.Errorf("expected retry limit 5, got %d", cfg.ExecutionRetryLimit)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	viper.Reset()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LEDGER_SERVICE_URL", "http://localhost:8083")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error when DATABASE_URL is missing")
	}
}

func TestLoadConfigRequiresLedgerServiceURL(t *testing.T) {
	viper.Reset()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/recurring")
	t.Setenv("LEDGER_SERVICE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error when LEDGER_SERVICE_URL is missing")
	}
}
