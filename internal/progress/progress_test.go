package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widthLog struct {
	mu     sync.Mutex
	widths []int
}

func (w *widthLog) add(width int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.widths = append(w.widths, width)
}

func (w *widthLog) snapshot() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.widths...)
}

func newFast(onWidth func(int), onCeiling func()) *Notifier {
	n := New(onWidth, onCeiling)
	n.interval = time.Millisecond
	return n
}

func TestCounterStepsByOneAndStopsOnce(t *testing.T) {
	var log widthLog
	var stops atomic.Int32
	n := newFast(log.add, func() { stops.Add(1) })

	require.NoError(t, n.Start(context.Background()))

	select {
	case <-n.done:
	case <-time.After(5 * time.Second):
		t.Fatal("notifier did not reach the ceiling")
	}
	// The ceiling callback runs right after done closes
	require.Eventually(t, func() bool { return stops.Load() == 1 }, time.Second, time.Millisecond)

	widths := log.snapshot()
	require.Len(t, widths, Ceiling+1)
	for i := 0; i < Ceiling; i++ {
		assert.Equal(t, i+1, widths[i], "tick %d", i)
	}
	assert.Equal(t, 0, widths[Ceiling], "width resets after the ceiling")
	assert.Equal(t, 0, count(n))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), stops.Load(), "ceiling callback must fire exactly once")
	assert.Len(t, log.snapshot(), Ceiling+1, "no ticks after the ceiling")
}

func TestDefaults(t *testing.T) {
	n := New(nil, nil)
	assert.Equal(t, 5*time.Millisecond, n.interval)
	assert.Equal(t, 199, n.ceiling)
}

func TestCancelHaltsLoop(t *testing.T) {
	var log widthLog
	var stops atomic.Int32
	n := newFast(log.add, func() { stops.Add(1) })

	require.NoError(t, n.Start(context.Background()))
	require.Eventually(t, func() bool { return len(log.snapshot()) >= 3 }, time.Second, time.Millisecond)

	n.Cancel()
	count := len(log.snapshot())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, count, len(log.snapshot()), "no ticks after Cancel returns")
	assert.Equal(t, int32(0), stops.Load(), "cancelled notifier must not fire the ceiling")

	// Idempotent
	n.Cancel()
}

func TestCancelFromCeilingCallback(t *testing.T) {
	var n *Notifier
	fired := make(chan struct{})
	n = newFast(nil, func() {
		n.Cancel()
		close(fired)
	})
	n.ceiling = 3

	require.NoError(t, n.Start(context.Background()))
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel inside the ceiling callback deadlocked")
	}
}

func TestCancelBeforeStartIsNoop(t *testing.T) {
	n := New(nil, nil)
	n.Cancel()
}

func TestStartTwice(t *testing.T) {
	n := newFast(nil, nil)
	require.NoError(t, n.Start(context.Background()))
	defer n.Cancel()
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)
}

func TestParentContextStopsLoop(t *testing.T) {
	var stops atomic.Int32
	n := newFast(nil, func() { stops.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, n.Start(ctx))
	cancel()

	select {
	case <-n.done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on parent cancel")
	}
	assert.Equal(t, int32(0), stops.Load())
}

func count(n *Notifier) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}
