// Package risk implements the RiskGate: an ordered list of independent
// predicates a candidate signal must pass before the SignalEngine will
// admit it. This replaces a single monolithic CanTrade check with small
// composable functions so a risk profile can be assembled from whichever
// subset a deployment wants, in a fixed evaluation order.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Context carries everything a predicate needs to judge a candidate
// signal. It is read-only: predicates never mutate state, they only
// accept or reject.
type Context struct {
	Symbol          string
	Position        string // "long" or "short"
	PriceOpen       decimal.Decimal
	PriceTakeProfit decimal.Decimal
	PriceStopLoss   decimal.Decimal
	CurrentPrice    decimal.Decimal
	ActivePositions int
	DailyPnL        decimal.Decimal
	ConsecutiveLoss int
}

// RejectionError is raised by a predicate to short-circuit the gate. The
// Predicate field names which check failed; the backtest driver and the
// live loop copy it into the risk.rejection event. Neither records it in
// the sigexec_risk_rejections_total metric.
type RejectionError struct {
	Predicate string
	Reason    string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("risk: %s rejected: %s", e.Predicate, e.Reason)
}

// Predicate judges one candidate signal. It returns nil to accept, or a
// *RejectionError to reject with an explanation.
type Predicate func(Context) error

// Gate evaluates a candidate signal against an ordered list of
// predicates. The first rejection short-circuits the rest.
type Gate struct {
	Name       string
	Predicates []Predicate
}

// New creates a Gate named name with the given predicates, evaluated in
// the order supplied.
func New(name string, predicates ...Predicate) *Gate {
	return &Gate{Name: name, Predicates: predicates}
}

// Evaluate runs every predicate in order, returning the first
// rejection, or nil if ctx is accepted.
func (g *Gate) Evaluate(ctx Context) error {
	for _, p := range g.Predicates {
		if err := p(ctx); err != nil {
			return err
		}
	}
	return nil
}
