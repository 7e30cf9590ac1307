// Package events implements the typed event bus fanned out to observers
// (reporters, UIs). Delivery is per-subscriber: a slow subscriber never
// blocks another, and overflow drops the oldest queued event rather than
// the newest so a burst of terminal events (close, done) is never the
// casualty.
package events

import (
	"sync"
	"time"

	"github.com/lattice-trading/sigexec/internal/telemetry"
)

// Type tags the payload carried by an Event.
type Type string

const (
	TypeSignalOpened          Type = "signal.opened"
	TypeSignalClosed          Type = "signal.closed"
	TypeSignalScheduled       Type = "signal.scheduled"
	TypeSignalCancelled       Type = "signal.cancelled"
	TypePartialProfitAvail    Type = "partial_profit.available"
	TypePartialLossAvail      Type = "partial_loss.available"
	TypeBreakevenAvail        Type = "breakeven.available"
	TypePartialProfitCommit   Type = "partial_profit.commit"
	TypePartialLossCommit     Type = "partial_loss.commit"
	TypeBreakevenCommit       Type = "breakeven.commit"
	TypeTrailingStopCommit    Type = "trailing_stop.commit"
	TypeTrailingTakeCommit    Type = "trailing_take.commit"
	TypeRiskRejection         Type = "risk.rejection"
	TypeProgressBacktest      Type = "progress.backtest"
	TypeDone                  Type = "done"
	TypeErrorInfo             Type = "error.info"
	TypeErrorValidation       Type = "error.validation"
	TypeErrorCritical         Type = "error.critical"
)

// Envelope carries the fields every event shares, per spec.md §6.
type Envelope struct {
	ID           string
	Timestamp    time.Time
	Backtest     bool
	Symbol       string
	StrategyName string
	ExchangeName string
}

// Payload is implemented by every concrete event payload. It is a sealed
// interface: the unexported method confines implementations to this
// package so consumers' type switches can have an exhaustive default.
type Payload interface {
	eventPayload()
}

// Event is one entry on the bus: an envelope plus its typed payload.
type Event struct {
	Envelope
	Type    Type
	Payload Payload
}

// subscription is one subscriber's mailbox.
type subscription struct {
	ch    chan Event
	once  bool
	fired bool
}

// Bus is a multi-subscriber, typed fan-out. Safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs map[int]*subscription
	next int
}

// New creates a ready-to-use Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Subscribe registers a mailbox of the given buffer size that receives
// every event until Unsubscribe is called.
func (b *Bus) Subscribe(bufSize int) (<-chan Event, func()) {
	return b.subscribe(bufSize, false)
}

// SubscribeOnce registers a mailbox that is closed automatically after
// its first delivered event.
func (b *Bus) SubscribeOnce(bufSize int) (<-chan Event, func()) {
	return b.subscribe(bufSize, true)
}

func (b *Bus) subscribe(bufSize int, once bool) (<-chan Event, func()) {
	if bufSize <= 0 {
		bufSize = 64
	}
	sub := &subscription{ch: make(chan Event, bufSize), once: once}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Publish delivers e to every subscriber in emission order. Per
// subscriber, if the mailbox is full the oldest queued event is dropped
// to make room and subscriber.lag increments — delivery order for the
// events that do arrive is preserved.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		b.deliver(sub, e)
		if sub.once {
			close(sub.ch)
			delete(b.subs, id)
		}
	}
}

func (b *Bus) deliver(sub *subscription, e Event) {
	select {
	case sub.ch <- e:
		return
	default:
	}

	// Mailbox full: drop the oldest queued event, then enqueue e.
	select {
	case <-sub.ch:
		telemetry.RecordSubscriberLag()
	default:
	}
	select {
	case sub.ch <- e:
	default:
		// Another publisher raced us and refilled it; drop e rather
		// than block Publish.
		telemetry.RecordSubscriberLag()
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
