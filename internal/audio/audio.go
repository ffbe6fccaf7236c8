package audio

import (
	"context"
	"errors"
)

// ErrAccessDenied is returned by RequestAccess when the platform refuses capture
var ErrAccessDenied = errors.New("capture access denied")

// Constraints selects which tracks a capture request asks for
type Constraints struct {
	Audio bool
	Video bool
}

// Capture defines the interface for acquiring a live input device
type Capture interface {
	RequestAccess(ctx context.Context, c Constraints) (Stream, error)
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// Stream is an exclusive handle on a live mono audio track. Samples is
// closed once Release has stopped the track.
type Stream interface {
	Samples() <-chan []float32
	SampleRate() int
	Channels() int
	Release() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}
