package signalengine

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommitKind tags which mutation a CommitEvent carries.
type CommitKind string

const (
	// CommitTouch moves a scheduled signal to pending: the market has
	// touched priceOpen within the schedule window.
	CommitTouch CommitKind = "touch"
	// CommitFill moves a pending signal to active: its fill has been
	// acknowledged. In backtest this is emitted in the same replay step
	// as the corresponding CommitTouch (or standalone, for a signal
	// that entered pending immediately at its own creation).
	CommitFill         CommitKind = "fill"
	CommitClose         CommitKind = "close"
	CommitCancel        CommitKind = "cancel"
	CommitMilestone     CommitKind = "milestone"
	CommitTrailingStop  CommitKind = "trailing_stop"
	CommitTrailingTake  CommitKind = "trailing_take"
	CommitBreakeven     CommitKind = "breakeven"
)

// MilestoneSide distinguishes a partial milestone measured toward the
// take-profit target from one measured toward the stop loss: the same
// level (e.g. 10%) names two different prices depending on which side
// of entry it's interpolated against.
type MilestoneSide string

const (
	MilestoneSideProfit MilestoneSide = "profit"
	MilestoneSideLoss   MilestoneSide = "loss"
)

// CommitEvent is one queued mutation against a single signal. The
// engine drains these strictly in arrival order on the goroutine that
// calls ProcessCandle (it starts none of its own), so no two commits for
// the same symbol are ever applied concurrently.
//
// At, Price, and the kind-specific fields are set by whichever producer
// (replay step, strategy decision, schedule-expiry timer) determined
// the crossing; the engine itself only interprets Kind and applies the
// corresponding state transition.
type CommitEvent struct {
	SignalID SignalID
	Kind     CommitKind
	At       time.Time
	Price    decimal.Decimal

	// CloseReason is set when Kind == CommitClose.
	CloseReason CloseReason

	// Level and Side are set when Kind == CommitMilestone.
	Level PartialLevel
	Side  MilestoneSide

	// NewStopPrice/NewTakePrice are set when Kind is CommitTrailingStop,
	// CommitTrailingTake, or CommitBreakeven.
	NewStopPrice decimal.Decimal
	NewTakePrice decimal.Decimal
}
