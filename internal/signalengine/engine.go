package signalengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/clock"
	"github.com/lattice-trading/sigexec/internal/events"
	"github.com/lattice-trading/sigexec/internal/logger"
	"github.com/lattice-trading/sigexec/internal/telemetry"
	"github.com/shopspring/decimal"
)

// InvariantError marks a state transition the engine refused because it
// would violate the signal lifecycle invariants (e.g. committing against
// an unknown ID, or a CommitEvent whose Kind doesn't fit the signal's
// current State).
type InvariantError struct {
	SignalID SignalID
	Reason   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("signalengine: invariant violation on %s: %s", e.SignalID, e.Reason)
}

// EngineOptions bundles the CC_* knobs that shape replay and commit
// semantics for a run, as distinct from scheduleAwait which only gates
// schedule expiry.
type EngineOptions struct {
	// BreakevenTriggerPct is the distance from entry (as a percentage of
	// priceOpen) at which replay synthesizes an automatic breakeven
	// commit with no strategy intent required. Zero disables it.
	BreakevenTriggerPct decimal.Decimal

	// PercentSlippage and PercentFee are round-trip cost knobs applied
	// to a closed signal's PnLPercent (see pnlPercent).
	PercentSlippage decimal.Decimal
	PercentFee      decimal.Decimal
}

// Engine owns one symbol's signal arena and commit queue. Every mutation
// is drained through a single queue on the caller's own goroutine, so a
// RunContext gets exactly one logical execution stream: ProcessCandle
// must never be called concurrently for the same Engine.
type Engine struct {
	mu    sync.RWMutex
	arena map[SignalID]*Signal

	queue chan CommitEvent

	bus   *events.Bus
	clk   clock.Clock
	rc    RunContext
	log   *logger.Logger

	scheduleAwait time.Duration
	opts          EngineOptions
}

// New creates an Engine for the given RunContext. scheduleAwait bounds
// how long a scheduled signal may wait for its entry price before it is
// cancelled (CC_SCHEDULE_AWAIT_MINUTES); opts carries the remaining
// CC_* knobs that shape replay and close P&L.
func New(rc RunContext, bus *events.Bus, clk clock.Clock, scheduleAwait time.Duration, opts EngineOptions) *Engine {
	return &Engine{
		arena:         make(map[SignalID]*Signal),
		queue:         make(chan CommitEvent, 256),
		bus:           bus,
		clk:           clk,
		rc:            rc,
		log:           logger.Component("signalengine").Symbol(rc.Symbol),
		scheduleAwait: scheduleAwait,
		opts:          opts,
	}
}

func (e *Engine) envelope() events.Envelope {
	return events.Envelope{
		ID:           uuid.NewString(),
		Timestamp:    e.clk.Now(),
		Backtest:     e.rc.IsBacktest(),
		Symbol:       e.rc.Symbol,
		StrategyName: e.rc.StrategyName,
		ExchangeName: e.rc.ExchangeName,
	}
}

// Schedule admits a newly minted signal into the arena and publishes
// signal.scheduled. The caller (risk gate having already approved it) is
// responsible for everything upstream of this call.
func (e *Engine) Schedule(sig *Signal) {
	if e.opts.BreakevenTriggerPct.IsPositive() {
		sig.BreakevenTriggerEnabled = true
		shift := sig.PriceOpen.Mul(e.opts.BreakevenTriggerPct).Div(decimal.NewFromInt(100))
		if sig.Position == PositionShort {
			sig.BreakevenTriggerPrice = sig.PriceOpen.Sub(shift)
		} else {
			sig.BreakevenTriggerPrice = sig.PriceOpen.Add(shift)
		}
	}

	e.mu.Lock()
	e.arena[sig.ID] = sig
	e.mu.Unlock()

	e.bus.Publish(events.Event{
		Envelope: e.envelope(),
		Type:     events.TypeSignalScheduled,
		Payload: events.SignalScheduled{
			SignalID:        string(sig.ID),
			Position:        string(sig.Position),
			PriceOpen:       sig.PriceOpen,
			PriceTakeProfit: sig.PriceTakeProfit,
			PriceStopLoss:   sig.PriceStopLoss,
		},
	})
}

// Cancel transitions a scheduled or pending signal to cancelled. It is a
// no-op error for any other source state, since active/closed signals
// cannot be cancelled.
func (e *Engine) Cancel(id SignalID, reason string) error {
	e.mu.Lock()
	sig, ok := e.arena[id]
	if !ok {
		e.mu.Unlock()
		return &InvariantError{SignalID: id, Reason: "unknown signal"}
	}
	if sig.State != StateScheduled && sig.State != StatePending {
		e.mu.Unlock()
		return &InvariantError{SignalID: id, Reason: fmt.Sprintf("cannot cancel from state %s", sig.State)}
	}
	sig.State = StateCancelled
	e.mu.Unlock()

	e.bus.Publish(events.Event{
		Envelope: e.envelope(),
		Type:     events.TypeSignalCancelled,
		Payload:  events.SignalCancelled{SignalID: string(id), Reason: reason},
	})
	return nil
}

// Get returns the signal for id, if it exists in the arena.
func (e *Engine) Get(id SignalID) (*Signal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sig, ok := e.arena[id]
	return sig, ok
}

// Active lists every signal currently live (scheduled, pending, or
// active) — i.e. everything replay still needs to consider.
func (e *Engine) Active() []*Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Signal, 0, len(e.arena))
	for _, sig := range e.arena {
		switch sig.State {
		case StateScheduled, StatePending, StateActive:
			out = append(out, sig)
		}
	}
	return out
}

// Submit enqueues a commit event synthesized outside of replay — e.g. a
// management intent (trailing-stop, trailing-take, breakeven) the
// StrategyRunner proposed for an already-active signal. It joins the
// same FIFO queue replay-synthesized events use and is applied on the
// next drain, preserving one serialized stream per symbol.
func (e *Engine) Submit(evt CommitEvent) {
	e.queue <- evt
}

// ProcessCandle runs one replay step: it expires stale scheduled
// signals, replays every live signal's path against c, publishes the
// "available" half of the two-phase milestone/breakeven protocol for
// each path-crossing found, enqueues the resulting CommitEvents, and
// drains the queue before returning. The caller must serialize calls to
// ProcessCandle for a given Engine.
func (e *Engine) ProcessCandle(c candle.Candle) {
	e.expireStaleSchedules()

	for _, sig := range e.Active() {
		for _, evt := range replayStep(sig, c) {
			e.publishAvailable(sig, evt)
			e.queue <- evt
		}
	}
	e.drain()
}

// publishAvailable emits the "available" event for a replay-synthesized
// milestone or breakeven crossing, ahead of the CommitEvent that will
// apply it once the queue drains. Commits submitted outside replay
// (e.g. a strategy-initiated trailing intent) never go through this
// path, since there was no path-crossing to announce.
func (e *Engine) publishAvailable(sig *Signal, evt CommitEvent) {
	switch evt.Kind {
	case CommitMilestone:
		typ := events.TypePartialProfitAvail
		if evt.Side == MilestoneSideLoss {
			typ = events.TypePartialLossAvail
		}
		e.bus.Publish(events.Event{
			Envelope: e.envelope(),
			Type:     typ,
			Payload: events.MilestoneAvailable{
				SignalID: string(sig.ID),
				Label:    evt.Level.Label(),
				Price:    evt.Price,
			},
		})
	case CommitBreakeven:
		e.bus.Publish(events.Event{
			Envelope: e.envelope(),
			Type:     events.TypeBreakevenAvail,
			Payload: events.MilestoneAvailable{
				SignalID: string(sig.ID),
				Label:    "breakeven",
				Price:    evt.Price,
			},
		})
	}
}

func (e *Engine) expireStaleSchedules() {
	if e.scheduleAwait <= 0 {
		return
	}
	now := e.clk.Now()

	e.mu.RLock()
	var stale []SignalID
	for _, sig := range e.arena {
		if sig.State == StateScheduled && now.Sub(sig.ScheduledAt) > e.scheduleAwait {
			stale = append(stale, sig.ID)
		}
	}
	e.mu.RUnlock()

	for _, id := range stale {
		if err := e.Cancel(id, "schedule_await_exceeded"); err != nil {
			e.log.Warn("failed to expire stale schedule", "signal_id", id, "error", err)
		}
	}
}

// drain applies every queued CommitEvent, strictly in arrival order,
// until the queue is empty.
func (e *Engine) drain() {
	for {
		select {
		case evt := <-e.queue:
			if err := e.apply(evt); err != nil {
				e.log.Warn("commit rejected", "signal_id", evt.SignalID, "kind", evt.Kind, "error", err)
			}
		default:
			return
		}
	}
}

func (e *Engine) apply(evt CommitEvent) error {
	e.mu.Lock()
	sig, ok := e.arena[evt.SignalID]
	if !ok {
		e.mu.Unlock()
		return &InvariantError{SignalID: evt.SignalID, Reason: "unknown signal"}
	}

	var err error
	switch evt.Kind {
	case CommitTouch:
		err = e.applyTouch(sig, evt)
	case CommitFill:
		err = e.applyFill(sig, evt)
	case CommitClose:
		err = e.applyClose(sig, evt)
	case CommitMilestone:
		err = e.applyMilestone(sig, evt)
	case CommitTrailingStop:
		err = e.applyTrailingStop(sig, evt)
	case CommitTrailingTake:
		err = e.applyTrailingTake(sig, evt)
	case CommitBreakeven:
		err = e.applyBreakeven(sig, evt)
	default:
		err = &InvariantError{SignalID: evt.SignalID, Reason: fmt.Sprintf("unhandled commit kind %q", evt.Kind)}
	}
	e.mu.Unlock()
	return err
}

func (e *Engine) applyTouch(sig *Signal, evt CommitEvent) error {
	if sig.State != StateScheduled {
		return &InvariantError{SignalID: sig.ID, Reason: fmt.Sprintf("touch from state %s", sig.State)}
	}
	at := evt.At
	sig.State = StatePending
	sig.PendingAt = &at
	return nil
}

func (e *Engine) applyFill(sig *Signal, evt CommitEvent) error {
	if sig.State != StatePending {
		return &InvariantError{SignalID: sig.ID, Reason: fmt.Sprintf("fill from state %s", sig.State)}
	}
	at := evt.At
	sig.State = StateActive
	sig.OpenedAt = &at
	if sig.PendingAt == nil {
		sig.PendingAt = &at
	}

	e.bus.Publish(events.Event{
		Envelope: e.envelope(),
		Type:     events.TypeSignalOpened,
		Payload: events.SignalOpened{
			SignalID:  string(sig.ID),
			Position:  string(sig.Position),
			PriceOpen: evt.Price,
		},
	})
	return nil
}

func (e *Engine) applyClose(sig *Signal, evt CommitEvent) error {
	if sig.State != StateActive {
		return &InvariantError{SignalID: sig.ID, Reason: fmt.Sprintf("close from state %s", sig.State)}
	}
	at := evt.At
	sig.State = StateClosed
	sig.ClosedAt = &at
	sig.PriceClose = evt.Price
	sig.CloseReason = evt.CloseReason

	e.bus.Publish(events.Event{
		Envelope: e.envelope(),
		Type:     events.TypeSignalClosed,
		Payload: events.SignalClosed{
			SignalID:   string(sig.ID),
			PriceClose: evt.Price,
			Reason:     string(evt.CloseReason),
			PnLPercent: e.pnlPercent(sig),
		},
	})
	return nil
}

func (e *Engine) applyMilestone(sig *Signal, evt CommitEvent) error {
	if sig.State != StateActive {
		return &InvariantError{SignalID: sig.ID, Reason: fmt.Sprintf("milestone from state %s", sig.State)}
	}

	typ := events.TypePartialProfitCommit
	label := "profit_" + evt.Level.Label()
	if evt.Side == MilestoneSideLoss {
		if sig.EmittedLossMilestones[evt.Level] {
			return nil
		}
		sig.EmittedLossMilestones[evt.Level] = true
		typ, label = events.TypePartialLossCommit, "loss_"+evt.Level.Label()
	} else {
		if sig.EmittedMilestones[evt.Level] {
			return nil
		}
		sig.EmittedMilestones[evt.Level] = true
	}
	telemetry.RecordMilestone(label)

	e.bus.Publish(events.Event{
		Envelope: e.envelope(),
		Type:     typ,
		Payload: events.MilestoneCommitted{
			SignalID: string(sig.ID),
			Label:    evt.Level.Label(),
			Price:    evt.Price,
		},
	})
	return nil
}

func (e *Engine) applyTrailingStop(sig *Signal, evt CommitEvent) error {
	if sig.State != StateActive {
		return &InvariantError{SignalID: sig.ID, Reason: fmt.Sprintf("trailing stop from state %s", sig.State)}
	}
	// A long's stop only ever moves up (toward price); a short's stop
	// only ever moves down. Any caller proposing the opposite direction
	// is loosening the stop, which the engine itself refuses regardless
	// of whether the caller already pre-clamped its candidate.
	loosens := evt.NewStopPrice.LessThan(sig.EffectivePriceStopLoss)
	if sig.Position == PositionShort {
		loosens = evt.NewStopPrice.GreaterThan(sig.EffectivePriceStopLoss)
	}
	if loosens || sig.EffectivePriceStopLoss.Equal(evt.NewStopPrice) {
		telemetry.RecordTrailingNoop()
		return nil
	}
	sig.EffectivePriceStopLoss = evt.NewStopPrice

	e.bus.Publish(events.Event{
		Envelope: e.envelope(),
		Type:     events.TypeTrailingStopCommit,
		Payload:  events.TrailingCommitted{SignalID: string(sig.ID), Kind: "stop", NewPrice: evt.NewStopPrice},
	})
	return nil
}

func (e *Engine) applyTrailingTake(sig *Signal, evt CommitEvent) error {
	if sig.State != StateActive {
		return &InvariantError{SignalID: sig.ID, Reason: fmt.Sprintf("trailing take from state %s", sig.State)}
	}
	// A long's take profit only ever moves down (closer to price,
	// a smaller but more certain gain); a short's only ever moves up.
	loosens := evt.NewTakePrice.GreaterThan(sig.EffectivePriceTakeProfit)
	if sig.Position == PositionShort {
		loosens = evt.NewTakePrice.LessThan(sig.EffectivePriceTakeProfit)
	}
	if loosens || sig.EffectivePriceTakeProfit.Equal(evt.NewTakePrice) {
		telemetry.RecordTrailingNoop()
		return nil
	}
	sig.EffectivePriceTakeProfit = evt.NewTakePrice

	e.bus.Publish(events.Event{
		Envelope: e.envelope(),
		Type:     events.TypeTrailingTakeCommit,
		Payload:  events.TrailingCommitted{SignalID: string(sig.ID), Kind: "take", NewPrice: evt.NewTakePrice},
	})
	return nil
}

func (e *Engine) applyBreakeven(sig *Signal, evt CommitEvent) error {
	if sig.State != StateActive {
		return &InvariantError{SignalID: sig.ID, Reason: fmt.Sprintf("breakeven from state %s", sig.State)}
	}
	if sig.BreakevenApplied {
		return nil
	}
	sig.BreakevenApplied = true
	sig.EffectivePriceStopLoss = evt.NewStopPrice
	telemetry.RecordMilestone("breakeven")

	e.bus.Publish(events.Event{
		Envelope: e.envelope(),
		Type:     events.TypeBreakevenCommit,
		Payload:  events.TrailingCommitted{SignalID: string(sig.ID), Kind: "stop", NewPrice: evt.NewStopPrice},
	})
	return nil
}

// pnlPercent computes a closed signal's round-trip P&L as a raw price
// percentage minus the configured slippage and fee, each counted twice
// (once on entry, once on exit): pct = raw - 2*fee - 2*slippage.
func (e *Engine) pnlPercent(sig *Signal) decimal.Decimal {
	if sig.PriceOpen.IsZero() {
		return decimal.Zero
	}
	diff := sig.PriceClose.Sub(sig.PriceOpen)
	if sig.Position == PositionShort {
		diff = diff.Neg()
	}
	raw := diff.Div(sig.PriceOpen).Mul(decimal.NewFromInt(100))
	two := decimal.NewFromInt(2)
	costs := e.opts.PercentFee.Mul(two).Add(e.opts.PercentSlippage.Mul(two))
	return raw.Sub(costs)
}
