package events

import (
	"github.com/shopspring/decimal"
)

// SignalOpened fires when a scheduled signal's entry price is touched and
// it transitions to active.
type SignalOpened struct {
	SignalID  string
	Position  string
	PriceOpen decimal.Decimal
}

func (SignalOpened) eventPayload() {}

// SignalClosed fires when an active signal closes, whatever the cause.
type SignalClosed struct {
	SignalID   string
	PriceClose decimal.Decimal
	Reason     string // "stop_loss", "take_profit", "manual", "breakeven"
	PnLPercent decimal.Decimal
}

func (SignalClosed) eventPayload() {}

// SignalScheduled fires when a strategy decision creates a new scheduled
// signal.
type SignalScheduled struct {
	SignalID        string
	Position        string
	PriceOpen       decimal.Decimal
	PriceTakeProfit decimal.Decimal
	PriceStopLoss   decimal.Decimal
}

func (SignalScheduled) eventPayload() {}

// SignalCancelled fires when a scheduled or pending signal is cancelled
// before it opens.
type SignalCancelled struct {
	SignalID string
	Reason   string
}

func (SignalCancelled) eventPayload() {}

// MilestoneAvailable fires when price crosses a partial-profit,
// partial-loss, or breakeven threshold and the commit has not yet been
// queued.
type MilestoneAvailable struct {
	SignalID string
	Label    string // "10".."100" or "breakeven"
	Price    decimal.Decimal
}

func (MilestoneAvailable) eventPayload() {}

// MilestoneCommitted fires once the corresponding CommitEvent has been
// drained and applied to the signal.
type MilestoneCommitted struct {
	SignalID string
	Label    string
	Price    decimal.Decimal
}

func (MilestoneCommitted) eventPayload() {}

// TrailingCommitted fires when a trailing-stop or trailing-take
// recompute moves the signal's effective stop or take price.
type TrailingCommitted struct {
	SignalID  string
	Kind      string // "stop" or "take"
	NewPrice  decimal.Decimal
}

func (TrailingCommitted) eventPayload() {}

// RiskRejection fires when the RiskGate rejects a candidate signal
// before it is scheduled.
type RiskRejection struct {
	Predicate string
	Reason    string
}

func (RiskRejection) eventPayload() {}

// ProgressBacktest reports replay progress through a backtest frame.
type ProgressBacktest struct {
	CandlesProcessed int
	CandlesTotal     int
	CurrentTime      string
}

func (ProgressBacktest) eventPayload() {}

// Done fires once a run (backtest frame, or a stopped live run) has
// finished and no further events will be published for it.
type Done struct {
	Reason string
}

func (Done) eventPayload() {}

// Info carries a non-fatal diagnostic (e.g. a strategy invocation
// timeout or panic that was absorbed).
type Info struct {
	Message string
}

func (Info) eventPayload() {}

// Validation carries a recoverable validation failure (e.g. a strategy
// returned a Decision with non-sensical prices).
type Validation struct {
	Message string
}

func (Validation) eventPayload() {}

// Critical carries a fatal error that is about to abort the run.
type Critical struct {
	Message string
}

func (Critical) eventPayload() {}
