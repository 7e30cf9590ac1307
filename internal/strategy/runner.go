package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/lattice-trading/sigexec/internal/logger"
)

// TickRunner invokes a Strategy at tick boundaries aligned to its
// configured interval, under a bounded timeout. A timeout or a
// recovered panic from Decide never propagates: it is logged and
// treated as an implicit Wait, preserving the single-threaded-per-
// symbol guarantee the SignalEngine depends on.
type TickRunner struct {
	Strategy Strategy
	Interval time.Duration
	Timeout  time.Duration

	log *logger.Logger
}

// NewTickRunner creates a TickRunner polling strategy every interval,
// aborting an invocation that runs longer than timeout.
func NewTickRunner(s Strategy, interval, timeout time.Duration) *TickRunner {
	return &TickRunner{
		Strategy: s,
		Interval: interval,
		Timeout:  timeout,
		log:      logger.Component("strategy").WithField("strategy", s.Name()),
	}
}

// Tick invokes the strategy once for symbol and returns its Decision.
// On timeout or panic it returns Wait() and a non-nil diagnostic error
// the caller should publish as an error.info event rather than abort.
func (r *TickRunner) Tick(ctx context.Context, sc Context, symbol string) (Decision, error) {
	type result struct {
		decision Decision
		err      error
	}

	resultCh := make(chan result, 1)
	tickCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resultCh <- result{decision: Wait(), err: fmt.Errorf("strategy %s panicked: %v", r.Strategy.Name(), rec)}
			}
		}()
		d, err := r.Strategy.Decide(tickCtx, sc, symbol)
		resultCh <- result{decision: d, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			r.log.Warn("strategy decision failed, treating as wait", "symbol", symbol, "error", res.err)
			return Wait(), res.err
		}
		return res.decision, nil
	case <-tickCtx.Done():
		r.log.Warn("strategy tick timed out, treating as wait", "symbol", symbol, "timeout", r.Timeout)
		return Wait(), fmt.Errorf("strategy %s: tick exceeded %s", r.Strategy.Name(), r.Timeout)
	}
}

// NextBoundary returns the next interval-aligned tick time strictly
// after now.
func (r *TickRunner) NextBoundary(now time.Time) time.Time {
	if r.Interval <= 0 {
		return now
	}
	epoch := now.Truncate(r.Interval)
	next := epoch.Add(r.Interval)
	if next.Before(now) || next.Equal(now) {
		next = next.Add(r.Interval)
	}
	return next
}
