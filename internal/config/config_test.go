package config

import (
	"testing"
	"time"
)

func TestLoad_SucceedsWithRequiredSecrets(t *testing.T) {
	t.Setenv("HYPERLIQUID_API_KEY", "test-key")
	t.Setenv("HYPERLIQUID_API_SECRET", "test-secret")
	t.Setenv("ENABLE_COINBASE", "false")
	t.Setenv("ENABLE_DYDX", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}

	hl := cfg.Exchanges["hyperliquid"]
	if hl == nil || hl.APIKey != "test-key" || hl.APISecret != "test-secret" {
		t.Fatalf("hyperliquid config not populated correctly: %+v", hl)
	}
}

func TestLoad_FailsWhenHyperliquidSecretsMissing(t *testing.T) {
	t.Setenv("ENABLE_COINBASE", "false")
	t.Setenv("ENABLE_DYDX", "false")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when hyperliquid secrets are missing")
	}
}

func TestLoad_FailsWhenCoinbaseSecretMissing(t *testing.T) {
	t.Setenv("HYPERLIQUID_API_KEY", "test-key")
	t.Setenv("HYPERLIQUID_API_SECRET", "test-secret")
	t.Setenv("ENABLE_COINBASE", "true")
	t.Setenv("COINBASE_API_KEY", "coinbase-key")
	t.Setenv("COINBASE_API_SECRET", "")
	t.Setenv("ENABLE_DYDX", "false")

	if _, err := Load(); err == nil {
		t.Fatal("expected error with missing coinbase secret")
	}
}

func TestLoad_FailsWhenDydxMissingAuth(t *testing.T) {
	t.Setenv("HYPERLIQUID_API_KEY", "test-key")
	t.Setenv("HYPERLIQUID_API_SECRET", "test-secret")
	t.Setenv("ENABLE_COINBASE", "false")
	t.Setenv("ENABLE_DYDX", "true")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when dydx enabled without credentials")
	}
}

func TestLoad_PopulatesEngineConfigFromCCEnvVars(t *testing.T) {
	t.Setenv("HYPERLIQUID_API_KEY", "test-key")
	t.Setenv("HYPERLIQUID_API_SECRET", "test-secret")
	t.Setenv("ENABLE_COINBASE", "false")
	t.Setenv("ENABLE_DYDX", "false")
	t.Setenv("CC_PERCENT_SLIPPAGE", "0.25")
	t.Setenv("CC_PERCENT_FEE", "0.2")
	t.Setenv("CC_SCHEDULE_AWAIT_MINUTES", "45")
	t.Setenv("CC_MAX_RETRIES", "7")
	t.Setenv("RISK_NAME", "conservative")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected config to load, got error: %v", err)
	}

	if !cfg.Engine.PercentSlippage.Equal(getEnvDecimal("CC_PERCENT_SLIPPAGE", DefaultEngineConfig().PercentSlippage)) {
		t.Fatalf("expected CC_PERCENT_SLIPPAGE to be read from env, got %s", cfg.Engine.PercentSlippage)
	}
	if cfg.Engine.MaxRetries != 7 {
		t.Fatalf("expected CC_MAX_RETRIES=7, got %d", cfg.Engine.MaxRetries)
	}
	if cfg.Engine.ScheduleAwait != 45*time.Minute {
		t.Fatalf("expected CC_SCHEDULE_AWAIT_MINUTES=45 to parse as 45m, got %s", cfg.Engine.ScheduleAwait)
	}
	if cfg.Engine.RiskName != "conservative" {
		t.Fatalf("expected RISK_NAME=conservative, got %q", cfg.Engine.RiskName)
	}
}

func TestLoad_FailsWhenEngineConfigInvalid(t *testing.T) {
	t.Setenv("HYPERLIQUID_API_KEY", "test-key")
	t.Setenv("HYPERLIQUID_API_SECRET", "test-secret")
	t.Setenv("ENABLE_COINBASE", "false")
	t.Setenv("ENABLE_DYDX", "false")
	t.Setenv("CC_PERCENT_SLIPPAGE", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("expected error with negative CC_PERCENT_SLIPPAGE")
	}
}

func TestGetEnvDuration_DefaultsWhenUnset(t *testing.T) {
	got := getEnvDuration("CC_DOES_NOT_EXIST", 10*time.Minute)
	if got != 10*time.Minute {
		t.Fatalf("expected default of 10m, got %s", got)
	}
}

func TestGetEnvDuration_ParsesMinutes(t *testing.T) {
	t.Setenv("CC_TEST_MINUTES", "5")
	got := getEnvDuration("CC_TEST_MINUTES", time.Hour)
	if got != 5*time.Minute {
		t.Fatalf("expected 5m, got %s", got)
	}
}
