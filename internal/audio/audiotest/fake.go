// Package audiotest provides in-memory capture doubles for tests.
package audiotest

import (
	"context"
	"sync"

	"github.com/petems/sound-predict/internal/audio"
)

// Stream is an in-memory audio.Stream fed through Push
type Stream struct {
	Rate int

	// OnRelease runs once, before Samples is closed
	OnRelease func()

	once     sync.Once
	mu       sync.Mutex
	released bool
	out      chan []float32
}

func NewStream(rate int) *Stream {
	return &Stream{Rate: rate, out: make(chan []float32)}
}

// Push blocks until the consumer takes the chunk. It reports false once the
// stream has been released.
func (s *Stream) Push(samples []float32) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	s.out <- samples
	return true
}

func (s *Stream) Samples() <-chan []float32 { return s.out }

func (s *Stream) SampleRate() int { return s.Rate }

func (s *Stream) Channels() int { return 1 }

func (s *Stream) Release() error {
	s.once.Do(func() {
		if s.OnRelease != nil {
			s.OnRelease()
		}
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
		close(s.out)
	})
	return nil
}

func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Capture hands out Streams, or Err when set
type Capture struct {
	Err  error
	Rate int

	// Gate, when non-nil, holds every RequestAccess until it receives or is closed
	Gate chan struct{}

	mu          sync.Mutex
	streams     []*Stream
	constraints []audio.Constraints
	devices     []audio.AudioDevice
}

func (c *Capture) RequestAccess(ctx context.Context, cons audio.Constraints) (audio.Stream, error) {
	c.mu.Lock()
	c.constraints = append(c.constraints, cons)
	gate := c.Gate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.Err != nil {
		return nil, c.Err
	}

	rate := c.Rate
	if rate == 0 {
		rate = 16000
	}
	s := NewStream(rate)

	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

func (c *Capture) SetDevices(devices []audio.AudioDevice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = devices
}

func (c *Capture) ListDevices() ([]audio.AudioDevice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audio.AudioDevice(nil), c.devices...), nil
}

func (c *Capture) Close() error { return nil }

// Streams returns every stream granted so far
func (c *Capture) Streams() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Stream(nil), c.streams...)
}

// Constraints returns the constraints of every request so far
func (c *Capture) Constraints() []audio.Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audio.Constraints(nil), c.constraints...)
}
