package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxPositions rejects a candidate signal once activePositions reaches
// max, regardless of symbol.
func MaxPositions(max int) Predicate {
	return func(ctx Context) error {
		if ctx.ActivePositions >= max {
			return &RejectionError{
				Predicate: "max_positions",
				Reason:    fmt.Sprintf("%d active positions reached the %d limit", ctx.ActivePositions, max),
			}
		}
		return nil
	}
}

// MinRiskReward rejects a candidate whose reward-to-risk ratio (distance
// to take profit over distance to stop loss) is below min.
func MinRiskReward(min decimal.Decimal) Predicate {
	return func(ctx Context) error {
		risk := ctx.PriceOpen.Sub(ctx.PriceStopLoss).Abs()
		if risk.IsZero() {
			return &RejectionError{Predicate: "min_risk_reward", Reason: "zero-distance stop loss"}
		}
		reward := ctx.PriceTakeProfit.Sub(ctx.PriceOpen).Abs()
		ratio := reward.Div(risk)
		if ratio.LessThan(min) {
			return &RejectionError{
				Predicate: "min_risk_reward",
				Reason:    fmt.Sprintf("reward:risk %s below minimum %s", ratio.StringFixed(2), min.StringFixed(2)),
			}
		}
		return nil
	}
}

// MaxPositionNotional rejects a candidate whose notional (price times an
// assumed unit size) exceeds max. Sizing itself is out of scope for this
// engine — it enforces the entry price stays within a sane band instead
// of a concrete position size.
func MaxPositionNotional(max decimal.Decimal) Predicate {
	return func(ctx Context) error {
		if ctx.PriceOpen.GreaterThan(max) {
			return &RejectionError{
				Predicate: "max_position_notional",
				Reason:    fmt.Sprintf("entry price %s exceeds max notional %s", ctx.PriceOpen.StringFixed(2), max.StringFixed(2)),
			}
		}
		return nil
	}
}

// MaxDailyLoss rejects any new candidate once the day's realized PnL has
// fallen below -max.
func MaxDailyLoss(max decimal.Decimal) Predicate {
	return func(ctx Context) error {
		if ctx.DailyPnL.LessThan(max.Neg()) {
			return &RejectionError{
				Predicate: "max_daily_loss",
				Reason:    fmt.Sprintf("daily pnl %s breached -%s limit", ctx.DailyPnL.StringFixed(2), max.StringFixed(2)),
			}
		}
		return nil
	}
}

// ConsecutiveLossCooldown rejects new candidates once consecutiveLosses
// reaches limit. The caller is responsible for clearing the count once
// its own cooldown window elapses — the predicate itself is stateless.
func ConsecutiveLossCooldown(limit int) Predicate {
	return func(ctx Context) error {
		if ctx.ConsecutiveLoss >= limit {
			return &RejectionError{
				Predicate: "consecutive_loss_cooldown",
				Reason:    fmt.Sprintf("%d consecutive losses reached the %d cooldown threshold", ctx.ConsecutiveLoss, limit),
			}
		}
		return nil
	}
}

// OppositeSideExposure rejects a candidate that would open a position
// opposite an already-active one on the same symbol, unless flat is
// true (no conflicting exposure tracked).
func OppositeSideExposure(flat func(symbol, position string) bool) Predicate {
	return func(ctx Context) error {
		if !flat(ctx.Symbol, ctx.Position) {
			return &RejectionError{
				Predicate: "opposite_side_exposure",
				Reason:    fmt.Sprintf("%s already has exposure opposite %s", ctx.Symbol, ctx.Position),
			}
		}
		return nil
	}
}
