// Package progress drives the recording progress indicator and ends a
// recording automatically once it fills up.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// Interval between ticks
	Interval = 5 * time.Millisecond
	// Ceiling is the counter value that ends the recording
	Ceiling = 199
)

var ErrAlreadyStarted = errors.New("notifier already started")

// Notifier is a single-use repeating task: each tick advances the counter
// by one and reports it as the indicator width. Reaching Ceiling resets the
// counter, stops the task and fires the ceiling callback once.
type Notifier struct {
	interval  time.Duration
	ceiling   int
	onWidth   func(width int)
	onCeiling func()

	mu      sync.Mutex
	count   int
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a notifier. Either callback may be nil.
func New(onWidth func(width int), onCeiling func()) *Notifier {
	return &Notifier{
		interval:  Interval,
		ceiling:   Ceiling,
		onWidth:   onWidth,
		onCeiling: onCeiling,
		done:      make(chan struct{}),
	}
}

// Start launches the tick loop. It returns immediately.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return ErrAlreadyStarted
	}
	n.started = true

	ctx, n.cancel = context.WithCancel(ctx)
	go n.run(ctx)
	return nil
}

func (n *Notifier) run(ctx context.Context) {
	hit := n.loop(ctx)
	// done closes before the ceiling callback so the callback may Cancel
	close(n.done)
	if hit && n.onCeiling != nil {
		n.onCeiling()
	}
}

func (n *Notifier) loop(ctx context.Context) bool {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}

		n.mu.Lock()
		n.count++
		width := n.count
		hit := n.count >= n.ceiling
		n.mu.Unlock()
		n.report(width)

		if hit {
			n.mu.Lock()
			n.count = 0
			n.mu.Unlock()
			n.report(0)
			return true
		}
	}
}

func (n *Notifier) report(width int) {
	if n.onWidth != nil {
		n.onWidth(width)
	}
}

// Cancel halts the loop and waits for it to exit. It is a no-op when the
// notifier never started or already finished.
func (n *Notifier) Cancel() {
	n.mu.Lock()
	cancel := n.cancel
	n.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-n.done
}
