package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeConfig represents configuration for an exchange integration.
type ExchangeConfig struct {
	Name             string
	Enabled          bool
	APIKey           string
	APISecret        string
	Mnemonic         string
	WalletAddress    string
	SubAccountNumber int
	PortfolioID      string
}

// EngineConfig carries the CC_* knobs spec.md §6 names, plus the
// tick/frame cadence and risk profile selection. Every field has a
// default and is validated at startup rather than read ad hoc by
// whichever component happens to need it.
type EngineConfig struct {
	PercentSlippage      decimal.Decimal // applied symmetrically on entry and exit
	PercentFee           decimal.Decimal // doubled across the round trip
	BreakevenTriggerPct  decimal.Decimal // CC_BREAKEVEN_TRIGGER_PCT; 0 disables automatic breakeven
	ScheduleAwait        time.Duration   // CC_SCHEDULE_AWAIT_MINUTES
	MaxRetries           int             // CC_MAX_RETRIES
	StrategyTickInterval time.Duration
	FrameInterval        string
	RiskName             string
}

// DefaultEngineConfig matches the teacher's conservative defaults scaled
// to this engine's percentage-based fee/slippage model.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PercentSlippage:      decimal.NewFromFloat(0.05),
		PercentFee:           decimal.NewFromFloat(0.1),
		BreakevenTriggerPct:  decimal.NewFromFloat(5.0),
		ScheduleAwait:        30 * time.Minute,
		MaxRetries:           5,
		StrategyTickInterval: time.Hour,
		FrameInterval:        "1h",
		RiskName:             "default",
	}
}

func (e EngineConfig) validate() error {
	if e.PercentSlippage.IsNegative() {
		return fmt.Errorf("CC_PERCENT_SLIPPAGE must be >= 0")
	}
	if e.PercentFee.IsNegative() {
		return fmt.Errorf("CC_PERCENT_FEE must be >= 0")
	}
	if e.BreakevenTriggerPct.IsNegative() {
		return fmt.Errorf("CC_BREAKEVEN_TRIGGER_PCT must be >= 0")
	}
	if e.MaxRetries < 0 {
		return fmt.Errorf("CC_MAX_RETRIES must be >= 0")
	}
	if e.StrategyTickInterval <= 0 {
		return fmt.Errorf("strategy tick interval must be > 0")
	}
	return nil
}

// AppConfig aggregates configuration for the bot runtime.
type AppConfig struct {
	Environment    string
	TelemetryAddr  string
	InitialBalance decimal.Decimal
	StrategySymbol string
	Engine         EngineConfig
	Exchanges      map[string]*ExchangeConfig
}

// Load loads configuration from environment variables and validates it.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Environment:    getEnv("APP_ENV", "development"),
		TelemetryAddr:  getEnv("TELEMETRY_ADDR", ":9100"),
		InitialBalance: getEnvDecimal("INITIAL_BALANCE", decimal.NewFromFloat(10000)),
		StrategySymbol: getEnv("TRADING_SYMBOL", "BTC-USD"),
		Engine: EngineConfig{
			PercentSlippage:      getEnvDecimal("CC_PERCENT_SLIPPAGE", DefaultEngineConfig().PercentSlippage),
			PercentFee:           getEnvDecimal("CC_PERCENT_FEE", DefaultEngineConfig().PercentFee),
			BreakevenTriggerPct:  getEnvDecimal("CC_BREAKEVEN_TRIGGER_PCT", DefaultEngineConfig().BreakevenTriggerPct),
			ScheduleAwait:        getEnvDuration("CC_SCHEDULE_AWAIT_MINUTES", DefaultEngineConfig().ScheduleAwait),
			MaxRetries:           getEnvInt("CC_MAX_RETRIES", DefaultEngineConfig().MaxRetries),
			StrategyTickInterval: getEnvDuration("STRATEGY_TICK_INTERVAL", DefaultEngineConfig().StrategyTickInterval),
			FrameInterval:        getEnv("FRAME_INTERVAL", DefaultEngineConfig().FrameInterval),
			RiskName:             getEnv("RISK_NAME", DefaultEngineConfig().RiskName),
		},
		Exchanges: map[string]*ExchangeConfig{
			"hyperliquid": {
				Name:      "hyperliquid",
				Enabled:   getEnvBool("ENABLE_HYPERLIQUID", true),
				APIKey:    os.Getenv("HYPERLIQUID_API_KEY"),
				APISecret: os.Getenv("HYPERLIQUID_API_SECRET"),
			},
			"coinbase": {
				Name:        "coinbase",
				Enabled:     getEnvBool("ENABLE_COINBASE", true),
				APIKey:      os.Getenv("COINBASE_API_KEY"),
				APISecret:   os.Getenv("COINBASE_API_SECRET"),
				PortfolioID: os.Getenv("COINBASE_PORTFOLIO_ID"),
			},
			"dydx": {
				Name:             "dydx",
				Enabled:          getEnvBool("ENABLE_DYDX", false),
				APIKey:           os.Getenv("DYDX_API_KEY"),
				APISecret:        os.Getenv("DYDX_API_SECRET"),
				Mnemonic:         os.Getenv("DYDX_MNEMONIC"),
				WalletAddress:    os.Getenv("DYDX_WALLET_ADDRESS"),
				SubAccountNumber: getEnvInt("DYDX_SUBACCOUNT_NUMBER", 0),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *AppConfig) validate() error {
	if err := c.Engine.validate(); err != nil {
		return err
	}

	var missing []string

	if exchange, ok := c.Exchanges["hyperliquid"]; ok && exchange.Enabled {
		if exchange.APIKey == "" {
			missing = append(missing, "HYPERLIQUID_API_KEY")
		}
		if exchange.APISecret == "" {
			missing = append(missing, "HYPERLIQUID_API_SECRET")
		}
	}

	if exchange, ok := c.Exchanges["coinbase"]; ok && exchange.Enabled {
		if exchange.APIKey == "" {
			missing = append(missing, "COINBASE_API_KEY")
		}
		if exchange.APISecret == "" {
			missing = append(missing, "COINBASE_API_SECRET")
		}
	}

	if exchange, ok := c.Exchanges["dydx"]; ok && exchange.Enabled {
		hasMnemonic := exchange.Mnemonic != ""
		hasAPIKeys := exchange.APIKey != "" && exchange.APISecret != ""
		if !hasMnemonic && !hasAPIKeys {
			missing = append(missing, "DYDX_MNEMONIC or DYDX_API_KEY/DYDX_API_SECRET")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

// getEnvDuration reads key as a count of minutes, matching the
// CC_*_MINUTES naming convention spec.md §6 uses.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	minutes, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return time.Duration(minutes) * time.Minute
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := decimal.NewFromString(value); err == nil {
		return parsed
	}
	return defaultValue
}
