package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/config"
	"github.com/lattice-trading/sigexec/internal/events"
	"github.com/lattice-trading/sigexec/internal/exchange"
	"github.com/lattice-trading/sigexec/internal/exchange/simulated"
	"github.com/lattice-trading/sigexec/internal/signalengine"
	"github.com/lattice-trading/sigexec/internal/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngineConfig() config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	cfg.StrategyTickInterval = time.Hour
	cfg.FrameInterval = "1h"
	return cfg
}

func waitStrategy() strategy.Strategy {
	return strategy.Func{FuncName: "noop", DecideFn: func(ctx context.Context, sc strategy.Context, symbol string) (strategy.Decision, error) {
		return strategy.Wait(), nil
	}}
}

func simulatedHourly(n int) *simulated.Adapter {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]candle.Candle, n)
	for i := 0; i < n; i++ {
		p := decimal.NewFromFloat(100)
		candles[i] = candle.Candle{
			Symbol: "BTC-USD", Interval: "1h", OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open: p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1),
		}
	}
	return simulated.New("BTC-USD", candles)
}

func TestRunner_RunBacktest_UnknownStrategyIsMisconfiguration(t *testing.T) {
	reg := Registry{
		Strategies: map[string]strategy.Strategy{},
		Exchanges:  map[string]exchange.Adapter{"simulated": simulatedHourly(2)},
		Frames:     map[string]signalengine.FrameWindow{"default": {}},
	}
	r := New(testEngineConfig(), reg, events.New())

	err := r.RunBacktest(context.Background(), "BTC-USD", "missing", "simulated", "default")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMisconfiguration)
}

func TestRunner_RunBacktest_UnknownExchangeIsMisconfiguration(t *testing.T) {
	reg := Registry{
		Strategies: map[string]strategy.Strategy{"noop": waitStrategy()},
		Exchanges:  map[string]exchange.Adapter{},
		Frames:     map[string]signalengine.FrameWindow{"default": {}},
	}
	r := New(testEngineConfig(), reg, events.New())

	err := r.RunBacktest(context.Background(), "BTC-USD", "noop", "missing", "default")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMisconfiguration)
}

func TestRunner_RunBacktest_UnknownFrameIsMisconfiguration(t *testing.T) {
	reg := Registry{
		Strategies: map[string]strategy.Strategy{"noop": waitStrategy()},
		Exchanges:  map[string]exchange.Adapter{"simulated": simulatedHourly(2)},
		Frames:     map[string]signalengine.FrameWindow{},
	}
	r := New(testEngineConfig(), reg, events.New())

	err := r.RunBacktest(context.Background(), "BTC-USD", "noop", "simulated", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMisconfiguration)
}

func TestRunner_RunBacktest_UnknownRiskProfileIsMisconfiguration(t *testing.T) {
	cfg := testEngineConfig()
	cfg.RiskName = "nonexistent"
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := Registry{
		Strategies: map[string]strategy.Strategy{"noop": waitStrategy()},
		Exchanges:  map[string]exchange.Adapter{"simulated": simulatedHourly(2)},
		Frames:     map[string]signalengine.FrameWindow{"default": {Start: base, End: base.Add(2 * time.Hour), Interval: "1h"}},
	}
	r := New(cfg, reg, events.New())

	err := r.RunBacktest(context.Background(), "BTC-USD", "noop", "simulated", "default")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMisconfiguration)
}

func TestRunner_RunBacktest_CompletesAndPublishesDone(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	adapter := simulatedHourly(3)
	bus := events.New()
	ch, cancel := bus.Subscribe(64)
	defer cancel()

	reg := Registry{
		Strategies: map[string]strategy.Strategy{"noop": waitStrategy()},
		Exchanges:  map[string]exchange.Adapter{"simulated": adapter},
		Frames:     map[string]signalengine.FrameWindow{"default": {Start: base, End: base.Add(3 * time.Hour), Interval: "1h"}},
	}
	r := New(testEngineConfig(), reg, bus)

	err := r.RunBacktest(context.Background(), "BTC-USD", "noop", "simulated", "default")
	require.NoError(t, err)

	var sawDone bool
	drain := true
	for drain {
		select {
		case evt := <-ch:
			if evt.Type == events.TypeDone {
				sawDone = true
			}
		default:
			drain = false
		}
	}
	assert.True(t, sawDone)
}

func TestRunner_RunLive_UnknownStrategyIsMisconfiguration(t *testing.T) {
	reg := Registry{
		Strategies: map[string]strategy.Strategy{},
		Exchanges:  map[string]exchange.Adapter{"simulated": simulatedHourly(2)},
	}
	r := New(testEngineConfig(), reg, events.New())

	err := r.RunLive(context.Background(), "BTC-USD", "missing", "simulated")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMisconfiguration)
}

func TestRunner_RunLive_ReturnsNilOnImmediateCancellation(t *testing.T) {
	reg := Registry{
		Strategies: map[string]strategy.Strategy{"noop": waitStrategy()},
		Exchanges:  map[string]exchange.Adapter{"simulated": simulatedHourly(2)},
	}
	r := New(testEngineConfig(), reg, events.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.RunLive(ctx, "BTC-USD", "noop", "simulated")
	assert.NoError(t, err, "a context cancelled before any adapter fault is a clean shutdown, not a fatal error")
}

func TestClassify_MapsInvariantErrorToErrInvariantViolation(t *testing.T) {
	r := &Runner{}
	inv := &signalengine.InvariantError{SignalID: "abc", Reason: "test"}

	got := r.classify(inv)
	assert.ErrorIs(t, got, ErrInvariantViolation)
}

func TestClassify_MapsSymbolUnknownToErrAdapterFatal(t *testing.T) {
	r := &Runner{}
	err := &exchange.SymbolUnknown{Symbol: "XYZ"}

	got := r.classify(err)
	assert.ErrorIs(t, got, ErrAdapterFatal)
}

func TestClassify_PassesThroughUnrecognizedErrors(t *testing.T) {
	r := &Runner{}
	plain := errors.New("boom")

	got := r.classify(plain)
	assert.Equal(t, plain, got)
}
