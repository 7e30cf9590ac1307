package signalengine

import (
	"time"

	"github.com/lattice-trading/sigexec/internal/candle"
	"github.com/lattice-trading/sigexec/pkg/utils"
	"github.com/shopspring/decimal"
)

// pathPoint is one vertex of the reconstructed intra-candle price path,
// with its interpolated timestamp.
type pathPoint struct {
	price decimal.Decimal
	at    time.Time
	frac  float64 // position along the candle, 0 at OpenTime, 1 at CloseTime
}

// candlePath reconstructs the deterministic OHLC traversal order used to
// sequence same-candle crossings. A green candle is assumed to have
// travelled open->low->high->close; a red candle open->high->low->close.
// A doji (open == close) breaks the tie by visiting whichever shadow is
// smaller first, since the smaller excursion is the more probable first
// move.
func candlePath(c candle.Candle) []pathPoint {
	open, high, low, close := c.Open, c.High, c.Low, c.Close

	var prices []decimal.Decimal
	switch {
	case c.IsDoji():
		upperShadow := high.Sub(utils.MaxDecimal(open, close))
		lowerShadow := utils.MinDecimal(open, close).Sub(low)
		if lowerShadow.LessThanOrEqual(upperShadow) {
			prices = []decimal.Decimal{open, low, high, close}
		} else {
			prices = []decimal.Decimal{open, high, low, close}
		}
	case c.IsGreen():
		prices = []decimal.Decimal{open, low, high, close}
	default:
		prices = []decimal.Decimal{open, high, low, close}
	}

	span := c.CloseTime().Sub(c.OpenTime)
	n := len(prices) - 1
	points := make([]pathPoint, len(prices))
	for i, p := range prices {
		frac := float64(i) / float64(n)
		points[i] = pathPoint{
			price: p,
			frac:  frac,
			at:    c.OpenTime.Add(time.Duration(float64(span) * frac)),
		}
	}
	return points
}

// crossing describes one segment of the reconstructed path crossing a
// target price, with the interpolated timestamp of the crossing.
type crossing struct {
	price decimal.Decimal
	at    time.Time
}

// findCrossing scans the reconstructed path for the first segment whose
// range includes target, returning the linearly interpolated timestamp
// of the crossing. ok is false if the path never reaches target.
func findCrossing(points []pathPoint, target decimal.Decimal) (crossing, bool) {
	for i := 0; i+1 < len(points); i++ {
		a, b := points[i], points[i+1]
		lo, hi := a.price, b.price
		if lo.GreaterThan(hi) {
			lo, hi = hi, lo
		}
		if target.LessThan(lo) || target.GreaterThan(hi) {
			continue
		}
		if a.price.Equal(b.price) {
			return crossing{price: target, at: a.at}, true
		}
		t, _ := target.Sub(a.price).Div(b.price.Sub(a.price)).Float64()
		at := a.at.Add(time.Duration(float64(b.at.Sub(a.at)) * t))
		return crossing{price: target, at: at}, true
	}
	return crossing{}, false
}

// replayStep walks one candle's reconstructed path against a single
// signal and returns the CommitEvents it produces, in the order they
// occur along the path. It does not mutate the signal; the engine
// applies each CommitEvent as it drains the queue.
func replayStep(sig *Signal, c candle.Candle) []CommitEvent {
	points := candlePath(c)
	var events []CommitEvent

	switch sig.State {
	case StateScheduled:
		if cr, ok := findCrossing(points, sig.PriceOpen); ok {
			events = append(events, touchAndFill(sig, cr)...)
		}

	case StatePending:
		// Already pending (immediate entry, or touched in an earlier
		// candle): the fill is acknowledged at the open of the next
		// candle replay reaches, same as any other gapped crossing.
		events = append(events, CommitEvent{
			SignalID: sig.ID,
			Kind:     CommitFill,
			At:       c.OpenTime,
			Price:    c.Open,
		})

	case StateActive:
		events = append(events, activeCrossings(sig, points)...)
	}

	return events
}

// touchAndFill produces the CommitTouch/CommitFill pair for a scheduled
// signal whose entry level was reached within this candle. In backtest
// replay the fill is acknowledged in the same candle as the touch, so
// both commits carry the same timestamp and price.
func touchAndFill(sig *Signal, cr crossing) []CommitEvent {
	return []CommitEvent{
		{SignalID: sig.ID, Kind: CommitTouch, At: cr.at, Price: cr.price},
		{SignalID: sig.ID, Kind: CommitFill, At: cr.at, Price: cr.price},
	}
}

// activeCrossings finds every commit-worthy crossing for an active
// signal within one candle: stop loss, take profit, each unclaimed
// partial milestone on both the profit and loss side, an automatic
// breakeven trigger (if the run configures one), ordered by where they
// fall on the reconstructed path.
func activeCrossings(sig *Signal, points []pathPoint) []CommitEvent {
	type candidate struct {
		frac  float64
		event CommitEvent
	}
	var candidates []candidate

	if cr, ok := findCrossing(points, sig.EffectivePriceStopLoss); ok {
		candidates = append(candidates, candidate{
			frac: fracOf(points, cr.at),
			event: CommitEvent{
				SignalID:    sig.ID,
				Kind:        CommitClose,
				At:          cr.at,
				Price:       cr.price,
				CloseReason: CloseReasonStopLoss,
			},
		})
	}
	if cr, ok := findCrossing(points, sig.EffectivePriceTakeProfit); ok {
		candidates = append(candidates, candidate{
			frac: fracOf(points, cr.at),
			event: CommitEvent{
				SignalID:    sig.ID,
				Kind:        CommitClose,
				At:          cr.at,
				Price:       cr.price,
				CloseReason: CloseReasonTakeProfit,
			},
		})
	}

	if sig.BreakevenTriggerEnabled && !sig.BreakevenApplied {
		if cr, ok := findCrossing(points, sig.BreakevenTriggerPrice); ok {
			candidates = append(candidates, candidate{
				frac: fracOf(points, cr.at),
				event: CommitEvent{
					SignalID:     sig.ID,
					Kind:         CommitBreakeven,
					At:           cr.at,
					Price:        cr.price,
					NewStopPrice: sig.PriceOpen,
				},
			})
		}
	}

	for _, level := range AllPartialLevels {
		if !sig.EmittedMilestones[level] {
			target := milestonePrice(sig, level, MilestoneSideProfit)
			if cr, ok := findCrossing(points, target); ok {
				candidates = append(candidates, candidate{
					frac: fracOf(points, cr.at),
					event: CommitEvent{
						SignalID: sig.ID,
						Kind:     CommitMilestone,
						At:       cr.at,
						Price:    cr.price,
						Level:    level,
						Side:     MilestoneSideProfit,
					},
				})
			}
		}
		if !sig.EmittedLossMilestones[level] {
			target := milestonePrice(sig, level, MilestoneSideLoss)
			if cr, ok := findCrossing(points, target); ok {
				candidates = append(candidates, candidate{
					frac: fracOf(points, cr.at),
					event: CommitEvent{
						SignalID: sig.ID,
						Kind:     CommitMilestone,
						At:       cr.at,
						Price:    cr.price,
						Level:    level,
						Side:     MilestoneSideLoss,
					},
				})
			}
		}
	}

	// Sort by position along the path so commits apply in the order
	// price actually travelled through them within the candle.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].frac < candidates[j-1].frac; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	events := make([]CommitEvent, 0, len(candidates))
	for _, c := range candidates {
		events = append(events, c.event)
		// A close is terminal: nothing after it in this candle applies.
		if c.event.Kind == CommitClose {
			break
		}
	}
	return events
}

// milestonePrice computes the price for a partial level as the point
// level/100 of the way from entry toward the original take profit
// target (side == MilestoneSideProfit) or the original stop loss (side
// == MilestoneSideLoss).
func milestonePrice(sig *Signal, level PartialLevel, side MilestoneSide) decimal.Decimal {
	t := float64(level) / 100.0
	if side == MilestoneSideLoss {
		return utils.LerpDecimal(sig.PriceOpen, sig.OriginalPriceStopLoss, t)
	}
	return utils.LerpDecimal(sig.PriceOpen, sig.OriginalPriceTakeProfit, t)
}

// fracOf finds the path-relative position of a timestamp by locating
// the bracketing segment and interpolating. Used only to order same-
// candle crossings against each other.
func fracOf(points []pathPoint, at time.Time) float64 {
	for i := 0; i+1 < len(points); i++ {
		a, b := points[i], points[i+1]
		if at.Before(a.at) || at.After(b.at) {
			continue
		}
		span := b.at.Sub(a.at)
		if span == 0 {
			return a.frac
		}
		t := float64(at.Sub(a.at)) / float64(span)
		return a.frac + t*(b.frac-a.frac)
	}
	return 0
}
