package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContext struct{}

func (stubContext) Candles(ctx context.Context, symbol, interval string, limit int) ([]candle.Candle, error) {
	return nil, nil
}
func (stubContext) AveragePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (stubContext) Now() time.Time   { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
func (stubContext) Mode() clock.Mode { return clock.ModeBacktest }

func TestTickRunner_ReturnsStrategyDecision(t *testing.T) {
	s := Func{FuncName: "fixed", DecideFn: func(ctx context.Context, sc Context, symbol string) (Decision, error) {
		return Open("long", decimal.NewFromInt(100), decimal.NewFromInt(120), decimal.NewFromInt(90), 60, "test"), nil
	}}
	r := NewTickRunner(s, time.Hour, time.Second)

	d, err := r.Tick(context.Background(), stubContext{}, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, KindOpen, d.Kind)
}

func TestTickRunner_PanicIsAbsorbedAsWait(t *testing.T) {
	s := Func{FuncName: "panicky", DecideFn: func(ctx context.Context, sc Context, symbol string) (Decision, error) {
		panic("boom")
	}}
	r := NewTickRunner(s, time.Hour, time.Second)

	d, err := r.Tick(context.Background(), stubContext{}, "BTC-USD")
	require.Error(t, err)
	assert.Equal(t, KindWait, d.Kind)
}

func TestTickRunner_TimeoutIsAbsorbedAsWait(t *testing.T) {
	s := Func{FuncName: "slow", DecideFn: func(ctx context.Context, sc Context, symbol string) (Decision, error) {
		<-ctx.Done()
		return Wait(), ctx.Err()
	}}
	r := NewTickRunner(s, time.Hour, 10*time.Millisecond)

	d, err := r.Tick(context.Background(), stubContext{}, "BTC-USD")
	require.Error(t, err)
	assert.Equal(t, KindWait, d.Kind)
}

func TestTickRunner_ErrorFromStrategyIsAbsorbedAsWait(t *testing.T) {
	s := Func{FuncName: "failing", DecideFn: func(ctx context.Context, sc Context, symbol string) (Decision, error) {
		return Wait(), errors.New("boom")
	}}
	r := NewTickRunner(s, time.Hour, time.Second)

	d, err := r.Tick(context.Background(), stubContext{}, "BTC-USD")
	require.Error(t, err)
	assert.Equal(t, KindWait, d.Kind)
}

func TestTickRunner_NextBoundaryAlignsToInterval(t *testing.T) {
	s := Func{FuncName: "noop"}
	r := NewTickRunner(s, time.Hour, time.Second)

	now := time.Date(2026, 1, 1, 14, 37, 0, 0, time.UTC)
	next := r.NextBoundary(now)

	assert.True(t, next.After(now))
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, 15, next.Hour())
}

func TestTickRunner_NextBoundaryOnExactBoundaryAdvancesAFullInterval(t *testing.T) {
	s := Func{FuncName: "noop"}
	r := NewTickRunner(s, time.Hour, time.Second)

	now := time.Date(2026, 1, 1, 15, 0, 0, 0, time.UTC)
	next := r.NextBoundary(now)

	assert.Equal(t, time.Date(2026, 1, 1, 16, 0, 0, 0, time.UTC), next)
}
