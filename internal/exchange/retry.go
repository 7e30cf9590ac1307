package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/circuitbreaker"
	"github.com/lattice-trading/sigexec/internal/logger"
	"github.com/shopspring/decimal"
)

// RetryConfig controls the exponential backoff applied to Unavailable
// failures before an adapter call finally gives up.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig matches the teacher's circuit breaker defaults scaled
// to a short per-call retry budget rather than a long-lived breaker.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// RetryingAdapter wraps an Adapter with exponential backoff on
// Unavailable errors (capped at cfg.MaxRetries) and a circuit breaker
// that trips after repeated failures so a persistently down exchange
// fails fast instead of retrying forever.
type RetryingAdapter struct {
	inner  Adapter
	cfg    RetryConfig
	breaker *circuitbreaker.CircuitBreaker
	log    *logger.Logger
}

// NewRetryingAdapter wraps inner with the given retry policy.
func NewRetryingAdapter(inner Adapter, cfg RetryConfig) *RetryingAdapter {
	return &RetryingAdapter{
		inner: inner,
		cfg:   cfg,
		breaker: circuitbreaker.New("exchange-adapter:"+inner.Name(), &circuitbreaker.Config{
			MaxFailures:         uint32(cfg.MaxRetries),
			Timeout:             cfg.MaxDelay,
			MaxHalfOpenRequests: 1,
		}),
		log: logger.Component("exchange").WithField("adapter", inner.Name()),
	}
}

func (r *RetryingAdapter) Name() string { return r.inner.Name() }

func (r *RetryingAdapter) FormatPrice(symbol string, price decimal.Decimal) string {
	return r.inner.FormatPrice(symbol, price)
}

func (r *RetryingAdapter) FormatQuantity(symbol string, qty decimal.Decimal) string {
	return r.inner.FormatQuantity(symbol, qty)
}

func (r *RetryingAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int, endingAt time.Time) ([]candle.Candle, error) {
	var lastErr error
	delay := r.cfg.BaseDelay

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		var candles []candle.Candle
		err := r.breaker.Execute(ctx, func() error {
			var innerErr error
			candles, innerErr = r.inner.GetCandles(ctx, symbol, interval, limit, endingAt)
			return innerErr
		})

		if err == nil {
			return candles, nil
		}

		var unknown *SymbolUnknown
		if errors.As(err, &unknown) {
			return nil, err
		}

		lastErr = err
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			r.log.Warn("adapter circuit open, aborting retries", "symbol", symbol)
			break
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		r.log.Warn("candle fetch failed, retrying",
			"symbol", symbol, "attempt", attempt+1, "delay", delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}

	return nil, &Unavailable{Op: OperationGetCandles, Symbol: symbol, Err: lastErr}
}
