package risk

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMaxPositions(t *testing.T) {
	p := MaxPositions(3)

	if err := p(Context{ActivePositions: 2}); err != nil {
		t.Errorf("expected accept with 2 active positions, got %v", err)
	}

	err := p(Context{ActivePositions: 3})
	if err == nil {
		t.Fatal("expected rejection at the limit")
	}
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected *RejectionError, got %T", err)
	}
	if rej.Predicate != "max_positions" {
		t.Errorf("expected predicate name max_positions, got %s", rej.Predicate)
	}
}

func TestMinRiskReward(t *testing.T) {
	p := MinRiskReward(decimal.NewFromFloat(2))

	ok := Context{
		PriceOpen:       decimal.NewFromInt(100),
		PriceStopLoss:   decimal.NewFromInt(95),
		PriceTakeProfit: decimal.NewFromInt(112),
	}
	if err := p(ok); err != nil {
		t.Errorf("expected accept for 2.4:1 reward:risk, got %v", err)
	}

	bad := Context{
		PriceOpen:       decimal.NewFromInt(100),
		PriceStopLoss:   decimal.NewFromInt(95),
		PriceTakeProfit: decimal.NewFromInt(105),
	}
	if err := p(bad); err == nil {
		t.Fatal("expected rejection for 1:1 reward:risk")
	}
}

func TestMinRiskReward_ZeroRisk(t *testing.T) {
	p := MinRiskReward(decimal.NewFromFloat(2))
	ctx := Context{
		PriceOpen:     decimal.NewFromInt(100),
		PriceStopLoss: decimal.NewFromInt(100),
	}
	if err := p(ctx); err == nil {
		t.Fatal("expected rejection for zero-distance stop loss")
	}
}

func TestMaxDailyLoss(t *testing.T) {
	p := MaxDailyLoss(decimal.NewFromFloat(100))

	if err := p(Context{DailyPnL: decimal.NewFromFloat(-50)}); err != nil {
		t.Errorf("expected accept above the loss floor, got %v", err)
	}
	if err := p(Context{DailyPnL: decimal.NewFromFloat(-150)}); err == nil {
		t.Fatal("expected rejection once daily loss breaches the limit")
	}
}

func TestConsecutiveLossCooldown(t *testing.T) {
	p := ConsecutiveLossCooldown(3)

	if err := p(Context{ConsecutiveLoss: 2}); err != nil {
		t.Errorf("expected accept below the cooldown threshold, got %v", err)
	}
	if err := p(Context{ConsecutiveLoss: 3}); err == nil {
		t.Fatal("expected rejection at the cooldown threshold")
	}
}

func TestGate_FirstRejectionShortCircuits(t *testing.T) {
	var secondCalled bool
	gate := New("test",
		func(Context) error { return &RejectionError{Predicate: "first", Reason: "always rejects"} },
		func(Context) error { secondCalled = true; return nil },
	)

	err := gate.Evaluate(Context{})
	if err == nil {
		t.Fatal("expected rejection from the first predicate")
	}
	if secondCalled {
		t.Error("second predicate should not run once the first rejects")
	}
}

func TestGate_AllAcceptPassesThrough(t *testing.T) {
	gate := New("test",
		func(Context) error { return nil },
		func(Context) error { return nil },
	)
	if err := gate.Evaluate(Context{}); err != nil {
		t.Errorf("expected acceptance, got %v", err)
	}
}
