// Package signalengine owns the signal lifecycle state machine: the
// value-type arena of signals keyed by opaque ID, the per-symbol commit
// queue that serializes every mutation, and the intra-candle replay that
// decides in what order same-candle crossings apply.
package signalengine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is the direction a signal trades.
type Position string

const (
	PositionLong  Position = "long"
	PositionShort Position = "short"
)

// State is a node in the signal lifecycle. Transitions only move
// forward: scheduled->{pending,cancelled}, pending->{active,cancelled},
// active->closed. There is no backward edge.
type State string

const (
	StateScheduled State = "scheduled"
	StatePending   State = "pending"
	StateActive    State = "active"
	StateClosed    State = "closed"
	StateCancelled State = "cancelled"
)

// CloseReason records why an active signal closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonBreakeven  CloseReason = "breakeven"
	CloseReasonManual     CloseReason = "manual"
)

// PartialLevel is a milestone on the path from entry toward the take
// profit target, expressed as a percentage of that distance.
type PartialLevel int

const (
	Partial10  PartialLevel = 10
	Partial20  PartialLevel = 20
	Partial30  PartialLevel = 30
	Partial40  PartialLevel = 40
	Partial50  PartialLevel = 50
	Partial60  PartialLevel = 60
	Partial70  PartialLevel = 70
	Partial80  PartialLevel = 80
	Partial90  PartialLevel = 90
	Partial100 PartialLevel = 100
)

// AllPartialLevels lists every milestone in ascending order, the order
// in which they are expected to be crossed on a monotonic approach to
// the take profit target.
var AllPartialLevels = []PartialLevel{
	Partial10, Partial20, Partial30, Partial40, Partial50,
	Partial60, Partial70, Partial80, Partial90, Partial100,
}

// Label renders the level the way milestone events and metrics key by it.
func (p PartialLevel) Label() string {
	switch p {
	case Partial100:
		return "100"
	default:
		return decimal.NewFromInt(int64(p)).String()
	}
}

// SignalID opaquely identifies a signal. Every cross-reference between
// signals (e.g. a CommitEvent targeting one) goes through this ID, never
// a pointer — the arena owns the only live *Signal values.
type SignalID string

// NewSignalID mints a fresh, globally unique ID.
func NewSignalID() SignalID {
	return SignalID(uuid.NewString())
}

// Signal is one scheduled/pending/active/closed trade idea. The engine
// is the sole mutator; everything else reads through the arena or
// reacts to published events.
type Signal struct {
	ID       SignalID
	Symbol   string
	Strategy string
	Position Position
	State    State

	PriceOpen       decimal.Decimal
	PriceTakeProfit decimal.Decimal
	PriceStopLoss   decimal.Decimal

	// Original* preserve the strategy's initial targets; Effective*
	// track where trailing/breakeven adjustments have moved them. Both
	// start equal to the strategy's request.
	OriginalPriceStopLoss   decimal.Decimal
	OriginalPriceTakeProfit decimal.Decimal
	EffectivePriceStopLoss  decimal.Decimal
	EffectivePriceTakeProfit decimal.Decimal

	MinuteEstimatedTime int
	Note                string

	ScheduledAt time.Time
	PendingAt   *time.Time
	OpenedAt    *time.Time
	ClosedAt    *time.Time

	PriceClose  decimal.Decimal
	CloseReason CloseReason

	// EmittedMilestones/EmittedLossMilestones record which PartialLevels
	// have already fired a MilestoneAvailable/Committed pair on the
	// profit side (toward OriginalPriceTakeProfit) and loss side (toward
	// OriginalPriceStopLoss) respectively, so a milestone is never
	// re-emitted once crossed.
	EmittedMilestones     map[PartialLevel]bool
	EmittedLossMilestones map[PartialLevel]bool
	BreakevenApplied      bool

	// BreakevenTriggerEnabled/BreakevenTriggerPrice are set by
	// Engine.Schedule from the run's configured trigger distance; when
	// enabled, replay synthesizes a breakeven commit the first time price
	// reaches BreakevenTriggerPrice, with no strategy intent required.
	BreakevenTriggerEnabled bool
	BreakevenTriggerPrice   decimal.Decimal
}

// InitialState decides whether a freshly admitted signal starts
// scheduled (its entry price still lies ahead of the market) or pending
// (immediate entry: priceOpen already equals the current price).
func InitialState(priceOpen, currentPrice decimal.Decimal) State {
	if priceOpen.Equal(currentPrice) {
		return StatePending
	}
	return StateScheduled
}

// NewSignal constructs a freshly admitted signal from a strategy's
// decision, in initialState (see InitialState). Original and Effective
// stop/take start identical.
func NewSignal(symbol, strategy string, position Position, initialState State, priceOpen, priceTakeProfit, priceStopLoss decimal.Decimal, minuteEstimatedTime int, note string, scheduledAt time.Time) *Signal {
	sig := &Signal{
		ID:                       NewSignalID(),
		Symbol:                   symbol,
		Strategy:                 strategy,
		Position:                 position,
		State:                    initialState,
		PriceOpen:                priceOpen,
		PriceTakeProfit:          priceTakeProfit,
		PriceStopLoss:            priceStopLoss,
		OriginalPriceStopLoss:    priceStopLoss,
		OriginalPriceTakeProfit:  priceTakeProfit,
		EffectivePriceStopLoss:   priceStopLoss,
		EffectivePriceTakeProfit: priceTakeProfit,
		MinuteEstimatedTime:      minuteEstimatedTime,
		Note:                     note,
		ScheduledAt:              scheduledAt,
		EmittedMilestones:        make(map[PartialLevel]bool),
		EmittedLossMilestones:    make(map[PartialLevel]bool),
	}
	if initialState == StatePending {
		sig.PendingAt = &scheduledAt
	}
	return sig
}

// FrameWindow bounds a backtest replay: every candle with OpenTime in
// [Start, End) across Interval is fed through the engine in order.
type FrameWindow struct {
	Start    time.Time
	End      time.Time
	Interval string
}

// RunContext identifies one logical execution stream: a single
// (symbol, strategy, exchange) triple processed by exactly one engine
// goroutine, live or backtest.
type RunContext struct {
	Mode         string // "live" or "backtest"
	Symbol       string
	StrategyName string
	ExchangeName string
	Frame        *FrameWindow // nil in live mode
}

// IsBacktest reports whether this run replays historical candles rather
// than tailing the live feed.
func (r RunContext) IsBacktest() bool { return r.Mode == "backtest" }
