// Package runner is the composition root: it owns the registries of
// strategies, exchange adapters, and frames a deployment declares, and
// drives one or more (symbol, strategy, exchange) RunContexts — backtest
// or live — each on its own SignalEngine goroutine. Per spec.md §9
// ("explicit composition root"), nothing downstream reaches for a global
// singleton; every dependency is constructed here and passed down.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lattice-trading/sigexec/internal/backtest"
	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/internal/candlecache"
	"github.com/lattice-trading/sigexec/internal/clock"
	"github.com/lattice-trading/sigexec/internal/config"
	"github.com/lattice-trading/sigexec/internal/events"
	"github.com/lattice-trading/sigexec/internal/exchange"
	"github.com/lattice-trading/sigexec/internal/logger"
	"github.com/lattice-trading/sigexec/internal/risk"
	"github.com/lattice-trading/sigexec/internal/signalengine"
	"github.com/lattice-trading/sigexec/internal/strategy"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrMisconfiguration means the requested (symbol, strategy, exchange,
// frame) combination could not be resolved against the Registry, or the
// risk profile name is unknown — a startup-time configuration problem,
// not a runtime fault. cmd/sigexec maps this to exit code 2.
var ErrMisconfiguration = errors.New("runner: misconfiguration")

// ErrAdapterFatal wraps an exchange.SymbolUnknown or an adapter failure
// that exhausted its retry budget. cmd/sigexec maps this to exit code 3.
var ErrAdapterFatal = errors.New("runner: adapter fatal")

// ErrInvariantViolation wraps a signalengine.InvariantError that escaped
// a run. cmd/sigexec maps this to exit code 4.
var ErrInvariantViolation = errors.New("runner: invariant violation")

// Registry is every strategy, exchange adapter, and backtest frame a
// deployment has declared, looked up by name at Run time.
type Registry struct {
	Strategies map[string]strategy.Strategy
	Exchanges  map[string]exchange.Adapter
	Frames     map[string]signalengine.FrameWindow
}

// Runner drives RunContexts against a Registry under one EngineConfig
// and publishes every component's events onto one shared Bus.
type Runner struct {
	cfg config.EngineConfig
	reg Registry
	bus *events.Bus
	log *logger.Logger
}

// New creates a Runner. bus is shared across every RunContext the Runner
// drives; observers (e.g. persistence.Subscriber) subscribe to it once,
// independent of how many runs are started.
func New(cfg config.EngineConfig, reg Registry, bus *events.Bus) *Runner {
	return &Runner{cfg: cfg, reg: reg, bus: bus, log: logger.Component("runner")}
}

// RunBacktest replays frameName for (symbol, strategyName, exchangeName)
// to completion.
func (r *Runner) RunBacktest(ctx context.Context, symbol, strategyName, exchangeName, frameName string) error {
	strat, adapter, frame, gate, err := r.resolve(strategyName, exchangeName, frameName)
	if err != nil {
		return err
	}

	rc := signalengine.RunContext{
		Mode: "backtest", Symbol: symbol, StrategyName: strategyName, ExchangeName: exchangeName,
		Frame: &frame,
	}

	clk := clock.NewBacktest(frame.Start)
	retrying := exchange.NewRetryingAdapter(adapter, exchange.RetryConfig{
		MaxRetries: r.cfg.MaxRetries, BaseDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second,
	})
	cache := candlecache.New(retrying, 0)
	engine := signalengine.New(rc, r.bus, clk, r.cfg.ScheduleAwait, r.engineOptions())
	tickRunner := strategy.NewTickRunner(strat, r.cfg.StrategyTickInterval, 5*time.Second)

	driver := backtest.New(backtest.Config{Symbol: symbol, PageSize: 500}, frame, cache, clk, engine, gate, tickRunner, r.bus, rc)

	if err := driver.Run(ctx); err != nil {
		return r.classify(err)
	}
	return nil
}

// RunLive tails exchangeName's live feed for symbol under strategyName
// until ctx is cancelled.
func (r *Runner) RunLive(ctx context.Context, symbol, strategyName, exchangeName string) error {
	strat, ok := r.reg.Strategies[strategyName]
	if !ok {
		return fmt.Errorf("%w: unknown strategy %q", ErrMisconfiguration, strategyName)
	}
	adapter, ok := r.reg.Exchanges[exchangeName]
	if !ok {
		return fmt.Errorf("%w: unknown exchange %q", ErrMisconfiguration, exchangeName)
	}
	gate, err := buildGate(r.cfg.RiskName)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMisconfiguration, err)
	}

	rc := signalengine.RunContext{Mode: "live", Symbol: symbol, StrategyName: strategyName, ExchangeName: exchangeName}
	clk := clock.NewLive()
	retrying := exchange.NewRetryingAdapter(adapter, exchange.RetryConfig{
		MaxRetries: r.cfg.MaxRetries, BaseDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second,
	})
	cache := candlecache.New(retrying, 4096)
	engine := signalengine.New(rc, r.bus, clk, r.cfg.ScheduleAwait, r.engineOptions())
	tickRunner := strategy.NewTickRunner(strat, r.cfg.StrategyTickInterval, 5*time.Second)

	loop := &liveLoop{
		symbol: symbol, interval: r.cfg.FrameInterval,
		cache: cache, clk: clk, engine: engine, gate: gate, runner: tickRunner, bus: r.bus, rc: rc,
		log: logger.Component("live").Symbol(symbol),
	}

	g, gctx := errgroup.WithContext(ctx)
	if streaming, ok := adapter.(interface {
		Run(ctx context.Context, interval string) error
	}); ok {
		g.Go(func() error { return streaming.Run(gctx, r.cfg.FrameInterval) })
	}
	g.Go(func() error { return loop.run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return r.classify(err)
	}
	return nil
}

func (r *Runner) resolve(strategyName, exchangeName, frameName string) (strategy.Strategy, exchange.Adapter, signalengine.FrameWindow, *risk.Gate, error) {
	strat, ok := r.reg.Strategies[strategyName]
	if !ok {
		return nil, nil, signalengine.FrameWindow{}, nil, fmt.Errorf("%w: unknown strategy %q", ErrMisconfiguration, strategyName)
	}
	adapter, ok := r.reg.Exchanges[exchangeName]
	if !ok {
		return nil, nil, signalengine.FrameWindow{}, nil, fmt.Errorf("%w: unknown exchange %q", ErrMisconfiguration, exchangeName)
	}
	frame, ok := r.reg.Frames[frameName]
	if !ok {
		return nil, nil, signalengine.FrameWindow{}, nil, fmt.Errorf("%w: unknown frame %q", ErrMisconfiguration, frameName)
	}
	gate, err := buildGate(r.cfg.RiskName)
	if err != nil {
		return nil, nil, signalengine.FrameWindow{}, nil, fmt.Errorf("%w: %s", ErrMisconfiguration, err)
	}
	return strat, adapter, frame, gate, nil
}

// engineOptions translates the Runner's EngineConfig into the knobs
// signalengine.New needs for replay and close P&L.
func (r *Runner) engineOptions() signalengine.EngineOptions {
	return signalengine.EngineOptions{
		BreakevenTriggerPct: r.cfg.BreakevenTriggerPct,
		PercentSlippage:     r.cfg.PercentSlippage,
		PercentFee:          r.cfg.PercentFee,
	}
}

func (r *Runner) classify(err error) error {
	var inv *signalengine.InvariantError
	if errors.As(err, &inv) {
		return fmt.Errorf("%w: %s", ErrInvariantViolation, err)
	}
	if exchange.IsSymbolUnknown(err) || exchange.IsUnavailable(err) {
		return fmt.Errorf("%w: %s", ErrAdapterFatal, err)
	}
	return err
}

// buildGate resolves a named risk profile to a concrete Gate. Profiles
// are a fixed registry for now — spec.md §6's RiskProfile contract names
// a profile, it does not require dynamic predicate composition at
// runtime.
func buildGate(name string) (*risk.Gate, error) {
	switch name {
	case "", "default":
		return risk.New("default",
			risk.MaxPositions(3),
			risk.MinRiskReward(decimal.NewFromFloat(1.5)),
		), nil
	case "conservative":
		return risk.New("conservative",
			risk.MaxPositions(1),
			risk.MinRiskReward(decimal.NewFromFloat(2.0)),
			risk.MaxDailyLoss(decimal.NewFromFloat(500)),
			risk.ConsecutiveLossCooldown(3),
		), nil
	default:
		return nil, fmt.Errorf("unknown risk profile %q", name)
	}
}

// liveLoop polls the candle cache for the newest closed bar on a fixed
// interval and feeds it through the same tick/replay path the backtest
// Driver uses, without ever advancing a Backtest clock (Live just
// reflects wall time). It implements strategy.Context itself so the
// TickRunner can poll it directly.
type liveLoop struct {
	symbol   string
	interval string

	cache  *candlecache.Cache
	clk    clock.Live
	engine *signalengine.Engine
	gate   *risk.Gate
	runner *strategy.TickRunner
	bus    *events.Bus
	rc     signalengine.RunContext
	log    *logger.Logger

	lastProcessed time.Time
}

func (l *liveLoop) run(ctx context.Context) error {
	d, err := candle.ParseInterval(l.interval)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMisconfiguration, err)
	}
	ticker := time.NewTicker(d / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.pollOnce(ctx); err != nil {
				l.log.Warn("live poll failed", "error", err)
			}
		}
	}
}

func (l *liveLoop) pollOnce(ctx context.Context) error {
	candles, err := l.cache.Get(ctx, l.symbol, l.interval, 1, time.Time{})
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}
	c := candles[len(candles)-1]
	if !c.OpenTime.After(l.lastProcessed) {
		return nil
	}
	l.lastProcessed = c.OpenTime

	decision, err := l.runner.Tick(ctx, l, l.symbol)
	if err != nil {
		l.bus.Publish(events.Event{Envelope: l.envelope(), Type: events.TypeErrorInfo, Payload: events.Info{Message: err.Error()}})
	}
	l.handle(decision, c)
	l.engine.ProcessCandle(c)
	return nil
}

func (l *liveLoop) handle(decision strategy.Decision, c candle.Candle) {
	switch decision.Kind {
	case strategy.KindOpen:
		rctx := risk.Context{
			Symbol: l.symbol, Position: decision.Position,
			PriceOpen: decision.PriceOpen, PriceTakeProfit: decision.PriceTakeProfit, PriceStopLoss: decision.PriceStopLoss,
			CurrentPrice: c.Close, ActivePositions: len(l.engine.Active()),
		}
		if err := l.gate.Evaluate(rctx); err != nil {
			predicate, reason := l.gate.Name, err.Error()
			var rejection *risk.RejectionError
			if errors.As(err, &rejection) {
				predicate, reason = rejection.Predicate, rejection.Reason
			}
			l.bus.Publish(events.Event{Envelope: l.envelope(), Type: events.TypeRiskRejection, Payload: events.RiskRejection{Predicate: predicate, Reason: reason}})
			return
		}
		state := signalengine.InitialState(decision.PriceOpen, c.Close)
		sig := signalengine.NewSignal(l.symbol, l.rc.StrategyName, signalengine.Position(decision.Position), state,
			decision.PriceOpen, decision.PriceTakeProfit, decision.PriceStopLoss, decision.MinuteEstimatedTime, decision.Note, l.clk.Now())
		l.engine.Schedule(sig)
	case strategy.KindCancelScheduled:
		if err := l.engine.Cancel(signalengine.SignalID(decision.SignalID), "cancel_scheduled_commit"); err != nil {
			l.log.Warn("cancel-scheduled rejected", "signal_id", decision.SignalID, "error", err)
		}
	case strategy.KindClosePending:
		if err := l.engine.Cancel(signalengine.SignalID(decision.SignalID), "close_pending_commit"); err != nil {
			l.log.Warn("close-pending rejected", "signal_id", decision.SignalID, "error", err)
		}
	}
}

func (l *liveLoop) envelope() events.Envelope {
	return events.Envelope{
		ID: uuid.NewString(), Timestamp: l.clk.Now(), Backtest: false,
		Symbol: l.symbol, StrategyName: l.rc.StrategyName, ExchangeName: l.rc.ExchangeName,
	}
}

// strategy.Context implementation.

func (l *liveLoop) Candles(ctx context.Context, symbol, interval string, limit int) ([]candle.Candle, error) {
	return l.cache.Get(ctx, symbol, interval, limit, time.Time{})
}

func (l *liveLoop) AveragePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	candles, err := l.cache.Get(ctx, symbol, l.interval, 1, time.Time{})
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(candles) == 0 {
		return decimal.Decimal{}, fmt.Errorf("live: no candle available for %s", symbol)
	}
	return candles[len(candles)-1].Close, nil
}

func (l *liveLoop) Now() time.Time   { return l.clk.Now() }
func (l *liveLoop) Mode() clock.Mode { return l.clk.Mode() }
