package persistence

import (
	"context"

	"github.com/lattice-trading/sigexec/internal/events"
	"github.com/lattice-trading/sigexec/internal/logger"
)

// Subscriber is an EventBus observer that durably records every signal
// lifecycle transition to signals.ndjson and every milestone/trailing/
// breakeven commit to commits.ndjson. It is one observer among
// potentially several — nothing about the engine or the bus is aware
// persistence exists.
type Subscriber struct {
	signals *Writer
	commits *Writer
	log     *logger.Logger
}

// NewSubscriber opens signalsPath and commitsPath for append.
func NewSubscriber(signalsPath, commitsPath string) (*Subscriber, error) {
	signals, err := Open(signalsPath)
	if err != nil {
		return nil, err
	}
	commits, err := Open(commitsPath)
	if err != nil {
		signals.Close()
		return nil, err
	}
	return &Subscriber{
		signals: signals,
		commits: commits,
		log:     logger.Component("persistence"),
	}, nil
}

// Run drains ch until ctx is cancelled or the bus closes it, appending
// each relevant event to its ndjson file.
func (s *Subscriber) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			s.handle(e)
		}
	}
}

func (s *Subscriber) handle(e events.Event) {
	switch {
	case signalEventTypes[e.Type]:
		if err := s.signals.Append(newSignalRecord(e)); err != nil {
			s.log.Warn("failed to persist signal event", "type", e.Type, "error", err)
		}
	case commitEventTypes[e.Type]:
		if err := s.commits.Append(newCommitRecord(e)); err != nil {
			s.log.Warn("failed to persist commit event", "type", e.Type, "error", err)
		}
	}
}

// Close flushes and closes both underlying files.
func (s *Subscriber) Close() error {
	err1 := s.signals.Close()
	err2 := s.commits.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
