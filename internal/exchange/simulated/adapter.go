// Package simulated provides a backtest exchange.Adapter that serves
// candles pre-loaded from CSV, with no network calls and no retry
// policy — the backtest driver owns time, not this adapter.
package simulated

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/shopspring/decimal"
)

// Adapter serves a fixed, pre-loaded set of candles for one symbol.
// GetCandles ignores endingAt's wall-clock meaning and instead returns
// the limit candles whose OpenTime is at or before endingAt, which the
// backtest driver sets to the replay clock's current position.
type Adapter struct {
	symbol  string
	candles []candle.Candle // ascending by OpenTime
}

// New wraps a pre-sorted candle slice for symbol.
func New(symbol string, candles []candle.Candle) *Adapter {
	sorted := make([]candle.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OpenTime.Before(sorted[j].OpenTime) })
	return &Adapter{symbol: symbol, candles: sorted}
}

// LoadCSV reads a CSV file into an Adapter for symbol. Expected columns:
// timestamp,open,high,low,close,volume. timestamp may be a Unix epoch
// (seconds or milliseconds) or RFC3339.
func LoadCSV(path, symbol, interval string) (*Adapter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("simulated: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	first, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("simulated: read header: %w", err)
	}
	if _, err := strconv.ParseFloat(first[1], 64); err != nil {
		// genuine header row, already consumed
	} else if _, err := f.Seek(0, io.SeekStart); err == nil {
		r = csv.NewReader(f)
	}

	var candles []candle.Candle
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("simulated: read record: %w", err)
		}
		if len(record) < 6 {
			continue
		}
		c, err := parseRecord(record, symbol, interval)
		if err != nil {
			continue
		}
		candles = append(candles, c)
	}

	return New(symbol, candles), nil
}

func parseRecord(record []string, symbol, interval string) (candle.Candle, error) {
	ts, err := parseTimestamp(record[0])
	if err != nil {
		return candle.Candle{}, err
	}
	open, err := decimal.NewFromString(record[1])
	if err != nil {
		return candle.Candle{}, fmt.Errorf("invalid open: %w", err)
	}
	high, err := decimal.NewFromString(record[2])
	if err != nil {
		return candle.Candle{}, fmt.Errorf("invalid high: %w", err)
	}
	low, err := decimal.NewFromString(record[3])
	if err != nil {
		return candle.Candle{}, fmt.Errorf("invalid low: %w", err)
	}
	closeP, err := decimal.NewFromString(record[4])
	if err != nil {
		return candle.Candle{}, fmt.Errorf("invalid close: %w", err)
	}
	volume, err := decimal.NewFromString(record[5])
	if err != nil {
		return candle.Candle{}, fmt.Errorf("invalid volume: %w", err)
	}
	return candle.Candle{
		Symbol:   symbol,
		Interval: interval,
		OpenTime: ts,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closeP,
		Volume:   volume,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ts > 10_000_000_000 {
			return time.UnixMilli(ts), nil
		}
		return time.Unix(ts, 0), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", s)
}

func (a *Adapter) Name() string { return "simulated" }

func (a *Adapter) FormatPrice(_ string, price decimal.Decimal) string {
	return price.StringFixed(8)
}

func (a *Adapter) FormatQuantity(_ string, qty decimal.Decimal) string {
	return qty.StringFixed(8)
}

func (a *Adapter) GetCandles(_ context.Context, symbol, _ string, limit int, endingAt time.Time) ([]candle.Candle, error) {
	if symbol != a.symbol {
		return nil, fmt.Errorf("simulated: unknown symbol %q", symbol)
	}

	end := len(a.candles)
	if !endingAt.IsZero() {
		end = sort.Search(len(a.candles), func(i int) bool {
			return a.candles[i].OpenTime.After(endingAt)
		})
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]candle.Candle, end-start)
	copy(out, a.candles[start:end])
	return out, nil
}

// Len reports how many candles this adapter holds.
func (a *Adapter) Len() int { return len(a.candles) }

// At returns the candle at index i, for the backtest driver to step
// through in order.
func (a *Adapter) At(i int) candle.Candle { return a.candles[i] }
