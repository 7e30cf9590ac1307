package persistence

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lattice-trading/sigexec/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func TestSubscriber_RoutesSignalAndCommitEventsToSeparateFiles(t *testing.T) {
	dir := t.TempDir()
	signalsPath := filepath.Join(dir, "signals.ndjson")
	commitsPath := filepath.Join(dir, "commits.ndjson")

	sub, err := NewSubscriber(signalsPath, commitsPath)
	require.NoError(t, err)

	bus := events.New()
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sub.Run(ctx, ch)
		close(done)
	}()

	bus.Publish(events.Event{Type: events.TypeSignalScheduled, Payload: events.SignalScheduled{SignalID: "s1"}})
	bus.Publish(events.Event{Type: events.TypeSignalOpened, Payload: events.SignalOpened{SignalID: "s1"}})
	bus.Publish(events.Event{Type: events.TypeTrailingStopCommit, Payload: events.TrailingCommitted{SignalID: "s1", Kind: "stop"}})
	bus.Publish(events.Event{Type: events.TypeProgressBacktest, Payload: events.ProgressBacktest{}}) // not persisted anywhere

	time.Sleep(50 * time.Millisecond)
	stop()
	<-done
	require.NoError(t, sub.Close())

	assert.Equal(t, 2, countLines(t, signalsPath))
	assert.Equal(t, 1, countLines(t, commitsPath))
}

func TestSubscriber_CloseClosesBothFiles(t *testing.T) {
	dir := t.TempDir()
	sub, err := NewSubscriber(filepath.Join(dir, "signals.ndjson"), filepath.Join(dir, "commits.ndjson"))
	require.NoError(t, err)
	require.NoError(t, sub.Close())
}
