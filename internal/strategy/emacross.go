package strategy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// EMACrossConfig parameterizes EMACross.
type EMACrossConfig struct {
	Interval       string
	FastPeriod     int
	SlowPeriod     int
	TakeProfitPct  decimal.Decimal
	StopLossPct    decimal.Decimal
	EstimatedMinutes int
}

// DefaultEMACrossConfig matches a conservative fast/slow pair over 1h
// candles with a 2:1 reward:risk shape.
func DefaultEMACrossConfig() EMACrossConfig {
	return EMACrossConfig{
		Interval:         "1h",
		FastPeriod:       9,
		SlowPeriod:       21,
		TakeProfitPct:    decimal.NewFromFloat(2.0),
		StopLossPct:      decimal.NewFromFloat(1.0),
		EstimatedMinutes: 240,
	}
}

// EMACross proposes a long on a bullish fast/slow EMA cross and a short
// on a bearish cross, sized by a fixed percentage take-profit/stop-loss
// band off the crossing price. It is the engine's sample built-in
// strategy, not a production trading rule.
type EMACross struct {
	cfg EMACrossConfig
}

// NewEMACross constructs an EMACross strategy with cfg.
func NewEMACross(cfg EMACrossConfig) *EMACross {
	return &EMACross{cfg: cfg}
}

func (s *EMACross) Name() string { return "ema_cross" }

func (s *EMACross) Decide(ctx context.Context, sc Context, symbol string) (Decision, error) {
	lookback := s.cfg.SlowPeriod + 2
	candles, err := sc.Candles(ctx, symbol, s.cfg.Interval, lookback)
	if err != nil {
		return Decision{}, fmt.Errorf("strategy %s: fetch candles: %w", s.Name(), err)
	}
	if len(candles) < lookback {
		return Wait(), nil
	}

	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	fast := EMA(closes, s.cfg.FastPeriod)
	slow := EMA(closes, s.cfg.SlowPeriod)
	if len(fast) < 2 || len(slow) < 2 {
		return Wait(), nil
	}

	// Both series are computed from the same trailing closes, so their
	// last elements already correspond to the same candle; compare the
	// trailing two points directly.
	fPrev, fCur := fast[len(fast)-2], fast[len(fast)-1]
	sPrev, sCur := slow[len(slow)-2], slow[len(slow)-1]

	bullishCross := fPrev.LessThanOrEqual(sPrev) && fCur.GreaterThan(sCur)
	bearishCross := fPrev.GreaterThanOrEqual(sPrev) && fCur.LessThan(sCur)

	current := closes[len(closes)-1]

	switch {
	case bullishCross:
		tp := current.Add(current.Mul(s.cfg.TakeProfitPct).Div(decimal.NewFromInt(100)))
		sl := current.Sub(current.Mul(s.cfg.StopLossPct).Div(decimal.NewFromInt(100)))
		return Open("long", current, tp, sl, s.cfg.EstimatedMinutes,
			fmt.Sprintf("ema%d crossed above ema%d", s.cfg.FastPeriod, s.cfg.SlowPeriod)), nil

	case bearishCross:
		tp := current.Sub(current.Mul(s.cfg.TakeProfitPct).Div(decimal.NewFromInt(100)))
		sl := current.Add(current.Mul(s.cfg.StopLossPct).Div(decimal.NewFromInt(100)))
		return Open("short", current, tp, sl, s.cfg.EstimatedMinutes,
			fmt.Sprintf("ema%d crossed below ema%d", s.cfg.FastPeriod, s.cfg.SlowPeriod)), nil

	default:
		return Wait(), nil
	}
}
