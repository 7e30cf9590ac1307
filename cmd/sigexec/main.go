// Command sigexec runs the signal execution engine's core (the
// SignalEngine, CandleCache, RiskGate, StrategyRunner, EventBus) against
// either historical candles (backtest) or a live feed (live), independent
// of any dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lattice-trading/sigexec/internal/config"
	"github.com/lattice-trading/sigexec/internal/events"
	"github.com/lattice-trading/sigexec/internal/exchange"
	"github.com/lattice-trading/sigexec/internal/exchange/coinbase"
	"github.com/lattice-trading/sigexec/internal/exchange/simulated"
	"github.com/lattice-trading/sigexec/internal/exchange/stream"
	"github.com/lattice-trading/sigexec/internal/logger"
	"github.com/lattice-trading/sigexec/internal/persistence"
	"github.com/lattice-trading/sigexec/internal/runner"
	"github.com/lattice-trading/sigexec/internal/signalengine"
	"github.com/lattice-trading/sigexec/internal/strategy"
)

const (
	exitSuccess            = 0
	exitMisconfiguration   = 2
	exitAdapterFatal       = 3
	exitInvariantViolation = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 || args[0] != "run" {
		fmt.Fprintln(os.Stderr, "usage: sigexec run --mode {backtest,live} --symbol <S> --strategy <N> --exchange <N> [--frame <N>]")
		return exitMisconfiguration
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	mode := fs.String("mode", "backtest", "backtest or live")
	symbol := fs.String("symbol", "", "trading symbol (required)")
	strategyName := fs.String("strategy", "ema_cross", "strategy name")
	exchangeName := fs.String("exchange", "coinbase", "exchange adapter: coinbase, stream, or simulated")
	frameName := fs.String("frame", "default", "named backtest frame")
	dataFile := fs.String("data", "", "CSV of historical candles, required when --exchange simulated")
	frameStart := fs.String("frame-start", "", "RFC3339 frame start, required for backtest")
	frameEnd := fs.String("frame-end", "", "RFC3339 frame end, required for backtest")
	runDir := fs.String("run-dir", "./run", "directory for signals.ndjson / commits.ndjson")
	if err := fs.Parse(args[1:]); err != nil {
		return exitMisconfiguration
	}

	if *symbol == "" {
		fmt.Fprintln(os.Stderr, "sigexec: --symbol is required")
		return exitMisconfiguration
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sigexec: configuration: %v\n", err)
		return exitMisconfiguration
	}
	configureLogger(cfg.Environment)

	reg := runner.Registry{
		Strategies: map[string]strategy.Strategy{
			"ema_cross": strategy.NewEMACross(strategy.DefaultEMACrossConfig()),
		},
		Exchanges: map[string]exchange.Adapter{},
		Frames:    map[string]signalengine.FrameWindow{},
	}

	if err := registerExchange(reg, *exchangeName, *symbol, *dataFile, cfg.Engine.FrameInterval); err != nil {
		fmt.Fprintf(os.Stderr, "sigexec: %v\n", err)
		return exitMisconfiguration
	}

	if *mode == "backtest" {
		frame, err := parseFrame(*frameStart, *frameEnd, cfg.Engine.FrameInterval)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sigexec: %v\n", err)
			return exitMisconfiguration
		}
		reg.Frames[*frameName] = frame
	}

	bus := events.New()

	if err := os.MkdirAll(*runDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "sigexec: run dir: %v\n", err)
		return exitMisconfiguration
	}
	sub, err := persistence.NewSubscriber(filepath.Join(*runDir, "signals.ndjson"), filepath.Join(*runDir, "commits.ndjson"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sigexec: persistence: %v\n", err)
		return exitMisconfiguration
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	subCh, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	go sub.Run(ctx, subCh)

	r := runner.New(cfg.Engine, reg, bus)

	switch *mode {
	case "backtest":
		err = r.RunBacktest(ctx, *symbol, *strategyName, *exchangeName, *frameName)
	case "live":
		err = r.RunLive(ctx, *symbol, *strategyName, *exchangeName)
	default:
		fmt.Fprintf(os.Stderr, "sigexec: unknown mode %q\n", *mode)
		return exitMisconfiguration
	}

	return exitCode(err)
}

func registerExchange(reg runner.Registry, name, symbol, dataFile, frameInterval string) error {
	switch name {
	case "coinbase":
		reg.Exchanges["coinbase"] = coinbase.New(8, 16)
	case "stream":
		reg.Exchanges["stream"] = stream.New("coinbase-ws", "wss://advanced-trade-ws.coinbase.com", stream.DecodeJSONTicks)
	case "simulated":
		if dataFile == "" {
			return fmt.Errorf("--exchange simulated requires --data")
		}
		adapter, err := simulated.LoadCSV(dataFile, symbol, frameInterval)
		if err != nil {
			return fmt.Errorf("load historical data: %w", err)
		}
		reg.Exchanges["simulated"] = adapter
	default:
		return fmt.Errorf("unknown exchange %q", name)
	}
	return nil
}

func parseFrame(startStr, endStr, interval string) (signalengine.FrameWindow, error) {
	if startStr == "" || endStr == "" {
		return signalengine.FrameWindow{}, fmt.Errorf("--frame-start and --frame-end are required for backtest")
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return signalengine.FrameWindow{}, fmt.Errorf("--frame-start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return signalengine.FrameWindow{}, fmt.Errorf("--frame-end: %w", err)
	}
	if !end.After(start) {
		return signalengine.FrameWindow{}, fmt.Errorf("--frame-end must be after --frame-start")
	}
	return signalengine.FrameWindow{Start: start, End: end, Interval: interval}, nil
}

func configureLogger(environment string) {
	format := "json"
	level := slog.LevelInfo
	if environment == "development" {
		format = "text"
		level = slog.LevelDebug
	}
	logger.SetDefault(logger.New(&logger.Config{Level: level, Format: format}))
}

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	switch {
	case errors.Is(err, runner.ErrMisconfiguration):
		fmt.Fprintf(os.Stderr, "sigexec: %v\n", err)
		return exitMisconfiguration
	case errors.Is(err, runner.ErrInvariantViolation):
		fmt.Fprintf(os.Stderr, "sigexec: %v\n", err)
		return exitInvariantViolation
	case errors.Is(err, runner.ErrAdapterFatal):
		fmt.Fprintf(os.Stderr, "sigexec: %v\n", err)
		return exitAdapterFatal
	default:
		// An unclassified failure still aborted the run rather than
		// completing cleanly; adapter fatal is the closest of the three
		// non-success codes to "something broke outside the state
		// machine itself."
		fmt.Fprintf(os.Stderr, "sigexec: %v\n", err)
		return exitAdapterFatal
	}
}
