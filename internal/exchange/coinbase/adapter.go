// Package coinbase implements exchange.Adapter against Coinbase's
// public market-data REST endpoints. It fetches OHLCV candles only — no
// order placement, no authenticated endpoints, no JWT signing, since
// this engine never executes against a venue.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/exchange"
	"github.com/lattice-trading/sigexec/internal/ratelimit"
	"github.com/lattice-trading/sigexec/internal/telemetry"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.coinbase.com/api/v3/brokerage"

// Adapter fetches public candle data from Coinbase's Advanced Trade API.
type Adapter struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter ratelimit.Limiter
}

// New creates an Adapter against Coinbase's production API, rate
// limited to rps requests per second with the given burst.
func New(rps float64, burst int) *Adapter {
	return &Adapter{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		rateLimiter: ratelimit.NewTokenBucket(rps, burst),
	}
}

// NewWithURL overrides the base URL, for pointing at a sandbox or test
// server.
func NewWithURL(baseURL string, rps float64, burst int) *Adapter {
	a := New(rps, burst)
	a.baseURL = baseURL
	return a
}

func (a *Adapter) Name() string { return "coinbase" }

func (a *Adapter) FormatPrice(_ string, price decimal.Decimal) string {
	return price.StringFixed(2)
}

func (a *Adapter) FormatQuantity(_ string, qty decimal.Decimal) string {
	return qty.StringFixed(8)
}

func intervalToGranularity(interval string) string {
	switch interval {
	case "1m":
		return "ONE_MINUTE"
	case "5m":
		return "FIVE_MINUTE"
	case "15m":
		return "FIFTEEN_MINUTE"
	case "1h":
		return "ONE_HOUR"
	case "6h":
		return "SIX_HOUR"
	case "1d":
		return "ONE_DAY"
	default:
		return "ONE_HOUR"
	}
}

type candlesResponse struct {
	Candles []struct {
		Start  string `json:"start"`
		Low    string `json:"low"`
		High   string `json:"high"`
		Open   string `json:"open"`
		Close  string `json:"close"`
		Volume string `json:"volume"`
	} `json:"candles"`
}

// GetCandles retrieves up to limit candles for symbol at interval
// ending at endingAt (or now, if zero), ascending by OpenTime.
func (a *Adapter) GetCandles(ctx context.Context, symbol, interval string, limit int, endingAt time.Time) ([]candle.Candle, error) {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("coinbase: rate limiter: %w", err)
	}

	if endingAt.IsZero() {
		endingAt = time.Now()
	}
	d, err := candle.ParseInterval(interval)
	if err != nil {
		return nil, fmt.Errorf("coinbase: %w", err)
	}
	start := endingAt.Add(-time.Duration(limit) * d)

	path := fmt.Sprintf("%s/market/products/%s/candles?start=%d&end=%d&granularity=%s",
		a.baseURL, symbol, start.Unix(), endingAt.Unix(), intervalToGranularity(interval))

	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("coinbase: build request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	telemetry.RecordAPIRequest("coinbase", "get_candles", time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("coinbase: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coinbase: read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &exchange.SymbolUnknown{Symbol: symbol}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &exchange.Unavailable{
			Op:     exchange.OperationGetCandles,
			Symbol: symbol,
			Err:    fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var parsed candlesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("coinbase: decode response: %w", err)
	}

	candles := make([]candle.Candle, 0, len(parsed.Candles))
	for _, c := range parsed.Candles {
		ts, err := parseStart(c.Start)
		if err != nil {
			continue
		}
		open, err1 := decimal.NewFromString(c.Open)
		high, err2 := decimal.NewFromString(c.High)
		low, err3 := decimal.NewFromString(c.Low)
		closeP, err4 := decimal.NewFromString(c.Close)
		volume, err5 := decimal.NewFromString(c.Volume)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		candles = append(candles, candle.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: ts,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
			Volume:   volume,
		})
	}

	// Coinbase returns newest-first; the engine expects ascending.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

func parseStart(s string) (time.Time, error) {
	if sec, err := decimal.NewFromString(s); err == nil {
		return time.Unix(sec.IntPart(), 0), nil
	}
	return time.Parse(time.RFC3339, s)
}
