package strategy

import (
	"context"
	"time"

	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/clock"
	"github.com/shopspring/decimal"
)

// Context is the read-only view of market state a strategy is given at
// each tick. It never exposes mutation: a strategy proposes a Decision,
// it never touches the signal arena directly.
type Context interface {
	// Candles returns up to limit recent candles for symbol at interval,
	// ascending by OpenTime.
	Candles(ctx context.Context, symbol, interval string, limit int) ([]candle.Candle, error)
	// AveragePrice returns the current reference price for symbol (the
	// close of the most recent candle in live mode, or the replay
	// clock's candle in backtest).
	AveragePrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Now() time.Time
	Mode() clock.Mode
}

// Kind tags which variant a Decision carries.
type Kind string

const (
	KindWait            Kind = "wait"
	KindOpen            Kind = "open"
	KindCancelScheduled Kind = "cancel_scheduled"
	KindClosePending    Kind = "close_pending"
	KindPartial         Kind = "partial"
	KindTrailingStop    Kind = "trailing_stop"
	KindTrailingTake    Kind = "trailing_take"
	KindBreakeven       Kind = "breakeven"
)

// Decision is the sealed tagged union a Strategy returns each tick.
// Exactly one field group is meaningful, selected by Kind. The backtest
// Driver and the live loop switch on Kind; neither panics on a kind it
// does not handle (the Driver logs a warning, the live loop ignores it).
type Decision struct {
	Kind Kind

	// Open fields (Kind == KindOpen).
	Position            string // "long" or "short"
	PriceOpen            decimal.Decimal
	PriceTakeProfit       decimal.Decimal
	PriceStopLoss         decimal.Decimal
	MinuteEstimatedTime   int
	Note                  string

	// SignalID scopes CancelScheduled, ClosePending, and every
	// management intent to one already-admitted signal.
	SignalID string

	// TrailingPercent is the tightening shift for KindTrailingStop /
	// KindTrailingTake, expressed as a percentage of current distance.
	TrailingPercent decimal.Decimal
}

// Wait is the no-op decision: nothing changes this tick.
func Wait() Decision { return Decision{Kind: KindWait} }

// Open proposes a new signal.
func Open(position string, priceOpen, priceTakeProfit, priceStopLoss decimal.Decimal, minuteEstimatedTime int, note string) Decision {
	return Decision{
		Kind:                KindOpen,
		Position:            position,
		PriceOpen:           priceOpen,
		PriceTakeProfit:     priceTakeProfit,
		PriceStopLoss:       priceStopLoss,
		MinuteEstimatedTime: minuteEstimatedTime,
		Note:                note,
	}
}

// CancelScheduled withdraws a not-yet-triggered scheduled signal.
func CancelScheduled(signalID string) Decision {
	return Decision{Kind: KindCancelScheduled, SignalID: signalID}
}

// ClosePending withdraws a signal that has touched entry but not yet
// had its fill acknowledged.
func ClosePending(signalID string) Decision {
	return Decision{Kind: KindClosePending, SignalID: signalID}
}

// Strategy is polled once per tick for a trading decision on symbol.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, sc Context, symbol string) (Decision, error)
}

// Func adapts a plain function to the Strategy interface.
type Func struct {
	FuncName string
	DecideFn func(ctx context.Context, sc Context, symbol string) (Decision, error)
}

func (f Func) Name() string { return f.FuncName }

func (f Func) Decide(ctx context.Context, sc Context, symbol string) (Decision, error) {
	return f.DecideFn(ctx, sc, symbol)
}
