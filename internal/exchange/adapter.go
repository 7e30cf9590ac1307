// Package exchange defines the ExchangeAdapter contract the core consumes
// to pull OHLCV candles, plus the error taxonomy and retry policy shared
// by every concrete adapter (exchange/coinbase, exchange/stream,
// exchange/simulated).
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/shopspring/decimal"
)

// Adapter pulls OHLCV candles for (symbol, interval, window) and formats
// prices/quantities for a symbol. It is pure data access: no lifecycle
// state lives here.
type Adapter interface {
	// GetCandles returns up to limit candles ending at endingAt (or "now"
	// if endingAt is zero), sorted ascending and contiguous.
	GetCandles(ctx context.Context, symbol, interval string, limit int, endingAt time.Time) ([]candle.Candle, error)
	FormatPrice(symbol string, price decimal.Decimal) string
	FormatQuantity(symbol string, qty decimal.Decimal) string
	Name() string
}

// Operation identifies which adapter call produced an error.
type Operation string

const (
	OperationGetCandles Operation = "get_candles"
)

// Unavailable wraps a transient adapter failure. Callers retry with
// exponential backoff capped by RetryConfig.MaxRetries.
type Unavailable struct {
	Op     Operation
	Symbol string
	Err    error
}

func (e *Unavailable) Error() string {
	return fmt.Sprintf("exchange unavailable: %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *Unavailable) Unwrap() error { return e.Err }

// SymbolUnknown is fatal: the run aborts rather than retrying.
type SymbolUnknown struct {
	Symbol string
}

func (e *SymbolUnknown) Error() string {
	return fmt.Sprintf("exchange: unknown symbol %q", e.Symbol)
}

// IsUnavailable reports whether err (or any error it wraps) is a
// transient Unavailable failure.
func IsUnavailable(err error) bool {
	var u *Unavailable
	return errors.As(err, &u)
}

// IsSymbolUnknown reports whether err (or any error it wraps) is a fatal
// SymbolUnknown failure.
func IsSymbolUnknown(err error) bool {
	var s *SymbolUnknown
	return errors.As(err, &s)
}
