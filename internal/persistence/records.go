package persistence

import (
	"github.com/lattice-trading/sigexec/internal/events"
)

// SignalRecord is the durable shape of a signal lifecycle event written
// to signals.ndjson.
type SignalRecord struct {
	EventID      string `json:"event_id"`
	Timestamp    string `json:"timestamp"`
	Symbol       string `json:"symbol"`
	StrategyName string `json:"strategy_name"`
	Type         string `json:"type"`
	Payload      any    `json:"payload"`
}

// CommitRecord is the durable shape of a milestone/trailing/breakeven
// commit event written to commits.ndjson.
type CommitRecord struct {
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	Symbol    string `json:"symbol"`
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
}

func newSignalRecord(e events.Event) SignalRecord {
	return SignalRecord{
		EventID:      e.ID,
		Timestamp:    e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Symbol:       e.Symbol,
		StrategyName: e.StrategyName,
		Type:         string(e.Type),
		Payload:      e.Payload,
	}
}

func newCommitRecord(e events.Event) CommitRecord {
	return CommitRecord{
		EventID:   e.ID,
		Timestamp: e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Symbol:    e.Symbol,
		Type:      string(e.Type),
		Payload:   e.Payload,
	}
}

// signalEventTypes are persisted to signals.ndjson: the lifecycle
// transitions themselves.
var signalEventTypes = map[events.Type]bool{
	events.TypeSignalScheduled: true,
	events.TypeSignalOpened:    true,
	events.TypeSignalClosed:    true,
	events.TypeSignalCancelled: true,
}

// commitEventTypes are persisted to commits.ndjson: the management
// actions applied to an already-active signal.
var commitEventTypes = map[events.Type]bool{
	events.TypePartialProfitAvail:  true,
	events.TypePartialLossAvail:   true,
	events.TypeBreakevenAvail:     true,
	events.TypePartialProfitCommit: true,
	events.TypePartialLossCommit:   true,
	events.TypeBreakevenCommit:     true,
	events.TypeTrailingStopCommit:  true,
	events.TypeTrailingTakeCommit:  true,
}
