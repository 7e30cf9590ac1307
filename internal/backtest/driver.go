// Package backtest implements the time-stepper that replays a frame
// window of historical candles through one (symbol, strategy) run: for
// every candle it advances the Clock, polls the strategy at tick
// boundaries, and hands the candle to the SignalEngine's intra-candle
// replay, publishing progress as it goes.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/candlecache"
	"github.com/lattice-trading/sigexec/internal/clock"
	"github.com/lattice-trading/sigexec/internal/events"
	"github.com/lattice-trading/sigexec/internal/logger"
	"github.com/lattice-trading/sigexec/internal/risk"
	"github.com/lattice-trading/sigexec/internal/signalengine"
	"github.com/lattice-trading/sigexec/internal/strategy"
	"github.com/shopspring/decimal"
)

// Config bundles the knobs a Driver needs beyond the components it is
// handed by the composition root.
type Config struct {
	Symbol   string
	PageSize int
}

// Driver steps one (symbol, strategy) run through a historical frame
// window. It implements strategy.Context so the same TickRunner code
// path serves both backtest and live modes.
type Driver struct {
	cfg    Config
	frame  signalengine.FrameWindow
	cache  *candlecache.Cache
	clk    *clock.Backtest
	engine *signalengine.Engine
	gate   *risk.Gate
	runner *strategy.TickRunner
	bus    *events.Bus
	rc     signalengine.RunContext
	log    *logger.Logger

	nextTick time.Time
}

// New creates a Driver. clk must be the same *clock.Backtest instance
// engine was built with — the driver is the only caller allowed to
// advance it.
func New(cfg Config, frame signalengine.FrameWindow, cache *candlecache.Cache, clk *clock.Backtest, engine *signalengine.Engine, gate *risk.Gate, runner *strategy.TickRunner, bus *events.Bus, rc signalengine.RunContext) *Driver {
	return &Driver{
		cfg:    cfg,
		frame:  frame,
		cache:  cache,
		clk:    clk,
		engine: engine,
		gate:   gate,
		runner: runner,
		bus:    bus,
		rc:     rc,
		log:    logger.Component("backtest").Symbol(cfg.Symbol),
	}
}

// Run replays the entire frame window in order, returning once every
// candle has been processed or ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	candles, err := d.cache.Window(ctx, d.cfg.Symbol, d.frame.Interval, d.frame.Start, d.frame.End, d.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("backtest: load frame: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("backtest: frame %s..%s has no candles", d.frame.Start, d.frame.End)
	}

	d.nextTick = candles[0].OpenTime

	for i, c := range candles {
		select {
		case <-ctx.Done():
			d.publishDone("cancelled")
			return ctx.Err()
		default:
		}

		d.clk.Set(c.OpenTime)

		if !d.nextTick.After(c.CloseTime()) {
			d.tick(ctx, c)
		}

		d.engine.ProcessCandle(c)

		d.bus.Publish(events.Event{
			Envelope: d.envelope(),
			Type:     events.TypeProgressBacktest,
			Payload: events.ProgressBacktest{
				CandlesProcessed: i + 1,
				CandlesTotal:     len(candles),
				CurrentTime:      c.OpenTime.Format(time.RFC3339),
			},
		})
	}

	d.publishDone("backtest_complete")
	return nil
}

func (d *Driver) tick(ctx context.Context, c candle.Candle) {
	decision, err := d.runner.Tick(ctx, d, d.cfg.Symbol)
	if err != nil {
		d.bus.Publish(events.Event{
			Envelope: d.envelope(),
			Type:     events.TypeErrorInfo,
			Payload:  events.Info{Message: err.Error()},
		})
	}
	d.applyDecision(decision, c)
	d.nextTick = d.runner.NextBoundary(d.clk.Now())
}

func (d *Driver) applyDecision(decision strategy.Decision, c candle.Candle) {
	switch decision.Kind {
	case strategy.KindWait:
		return
	case strategy.KindOpen:
		d.open(decision, c)
	case strategy.KindCancelScheduled:
		if err := d.engine.Cancel(signalengine.SignalID(decision.SignalID), "cancel_scheduled_commit"); err != nil {
			d.log.Warn("cancel-scheduled rejected", "signal_id", decision.SignalID, "error", err)
		}
	case strategy.KindClosePending:
		if err := d.engine.Cancel(signalengine.SignalID(decision.SignalID), "close_pending_commit"); err != nil {
			d.log.Warn("close-pending rejected", "signal_id", decision.SignalID, "error", err)
		}
	case strategy.KindTrailingStop, strategy.KindTrailingTake, strategy.KindBreakeven:
		d.manage(decision, c.Close)
	case strategy.KindPartial:
		// Decision carries no PartialLevel field: milestone emission is
		// driven entirely by intra-candle replay (engine.replayStep), the
		// mechanism spec.md §4.6 describes. A strategy-initiated partial
		// intent has nothing to attach to.
		d.log.Warn("strategy requested partial intent, unsupported", "signal_id", decision.SignalID)
	default:
		d.log.Warn("unhandled decision kind", "kind", decision.Kind)
	}
}

func (d *Driver) open(decision strategy.Decision, c candle.Candle) {
	rctx := risk.Context{
		Symbol:          d.cfg.Symbol,
		Position:        decision.Position,
		PriceOpen:       decision.PriceOpen,
		PriceTakeProfit: decision.PriceTakeProfit,
		PriceStopLoss:   decision.PriceStopLoss,
		CurrentPrice:    c.Close,
		ActivePositions: len(d.engine.Active()),
	}
	if err := d.gate.Evaluate(rctx); err != nil {
		predicate, reason := d.gate.Name, err.Error()
		var rejection *risk.RejectionError
		if errors.As(err, &rejection) {
			predicate, reason = rejection.Predicate, rejection.Reason
		}
		d.bus.Publish(events.Event{
			Envelope: d.envelope(),
			Type:     events.TypeRiskRejection,
			Payload:  events.RiskRejection{Predicate: predicate, Reason: reason},
		})
		return
	}

	state := signalengine.InitialState(decision.PriceOpen, c.Close)
	sig := signalengine.NewSignal(
		d.cfg.Symbol, d.rc.StrategyName, signalengine.Position(decision.Position), state,
		decision.PriceOpen, decision.PriceTakeProfit, decision.PriceStopLoss,
		decision.MinuteEstimatedTime, decision.Note, d.clk.Now(),
	)
	d.engine.Schedule(sig)
}

func (d *Driver) manage(decision strategy.Decision, currentPrice decimal.Decimal) {
	sig, ok := d.engine.Get(signalengine.SignalID(decision.SignalID))
	if !ok || sig.State != signalengine.StateActive {
		return
	}

	now := d.clk.Now()
	switch decision.Kind {
	case strategy.KindTrailingStop:
		d.engine.Submit(signalengine.CommitEvent{
			SignalID:     sig.ID,
			Kind:         signalengine.CommitTrailingStop,
			At:           now,
			NewStopPrice: tightenStop(sig.Position, sig.EffectivePriceStopLoss, currentPrice, decision.TrailingPercent),
		})
	case strategy.KindTrailingTake:
		d.engine.Submit(signalengine.CommitEvent{
			SignalID:     sig.ID,
			Kind:         signalengine.CommitTrailingTake,
			At:           now,
			NewTakePrice: tightenTake(sig.Position, sig.EffectivePriceTakeProfit, currentPrice, decision.TrailingPercent),
		})
	case strategy.KindBreakeven:
		d.engine.Submit(signalengine.CommitEvent{
			SignalID:     sig.ID,
			Kind:         signalengine.CommitBreakeven,
			At:           now,
			NewStopPrice: sig.PriceOpen,
		})
	}
}

// tightenStop computes the candidate stop after shifting pct percent of
// currentPrice toward it. The engine's own no-op check (applyTrailingStop)
// is what actually enforces "never loosens" — this just proposes a
// direction-correct candidate.
func tightenStop(position signalengine.Position, effective, currentPrice, pct decimal.Decimal) decimal.Decimal {
	shift := currentPrice.Mul(pct).Div(decimal.NewFromInt(100))
	if position == signalengine.PositionShort {
		candidate := currentPrice.Add(shift)
		if candidate.LessThan(effective) {
			return candidate
		}
		return effective
	}
	candidate := currentPrice.Sub(shift)
	if candidate.GreaterThan(effective) {
		return candidate
	}
	return effective
}

// tightenTake mirrors tightenStop for the take-profit side: it proposes
// pulling the target closer to currentPrice (a smaller, more certain
// remaining gain), never further away.
func tightenTake(position signalengine.Position, effective, currentPrice, pct decimal.Decimal) decimal.Decimal {
	shift := currentPrice.Mul(pct).Div(decimal.NewFromInt(100))
	if position == signalengine.PositionShort {
		candidate := currentPrice.Sub(shift)
		if candidate.GreaterThan(effective) {
			return candidate
		}
		return effective
	}
	candidate := currentPrice.Add(shift)
	if candidate.LessThan(effective) {
		return candidate
	}
	return effective
}

func (d *Driver) envelope() events.Envelope {
	return events.Envelope{
		ID:           uuid.NewString(),
		Timestamp:    d.clk.Now(),
		Backtest:     true,
		Symbol:       d.cfg.Symbol,
		StrategyName: d.rc.StrategyName,
		ExchangeName: d.rc.ExchangeName,
	}
}

func (d *Driver) publishDone(reason string) {
	d.bus.Publish(events.Event{
		Envelope: d.envelope(),
		Type:     events.TypeDone,
		Payload:  events.Done{Reason: reason},
	})
}

// strategy.Context implementation.

func (d *Driver) Candles(ctx context.Context, symbol, interval string, limit int) ([]candle.Candle, error) {
	return d.cache.Get(ctx, symbol, interval, limit, d.clk.Now())
}

func (d *Driver) AveragePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	candles, err := d.cache.Get(ctx, symbol, d.frame.Interval, 1, d.clk.Now())
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(candles) == 0 {
		return decimal.Decimal{}, fmt.Errorf("backtest: no candle available for %s", symbol)
	}
	return candles[len(candles)-1].Close, nil
}

func (d *Driver) Now() time.Time   { return d.clk.Now() }
func (d *Driver) Mode() clock.Mode { return d.clk.Mode() }
