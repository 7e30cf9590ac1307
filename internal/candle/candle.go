// Package candle defines the OHLCV value type shared by every component
// that touches market data: exchange adapters, the candle cache, the
// signal engine's intra-candle replay, and the backtest driver.
package candle

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an immutable OHLCV bar for a fixed interval.
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// CloseTime returns the end of the candle's bucket given its interval.
func (c Candle) CloseTime() time.Time {
	d, err := ParseInterval(c.Interval)
	if err != nil {
		return c.OpenTime
	}
	return c.OpenTime.Add(d)
}

// IsGreen reports whether the candle closed at or above its open.
func (c Candle) IsGreen() bool {
	return c.Close.GreaterThanOrEqual(c.Open)
}

// IsDoji reports whether open and close are equal.
func (c Candle) IsDoji() bool {
	return c.Close.Equal(c.Open)
}

// ParseInterval converts an exchange-style interval string ("1m", "5m",
// "1h", "1d") into a time.Duration.
func ParseInterval(interval string) (time.Duration, error) {
	return parseInterval(interval)
}

// NewFromFloat is a convenience wrapper kept for callers building test
// fixtures and CSV loaders without importing shopspring/decimal directly.
func NewFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
