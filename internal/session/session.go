package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petems/sound-predict/internal/audio"
	"github.com/petems/sound-predict/internal/progress"
	"github.com/petems/sound-predict/internal/recording"
	"github.com/petems/sound-predict/internal/wavenc"
	"github.com/rs/zerolog"
)

type Status int

const (
	Idle Status = iota
	Requesting
	Recording
	Stopped
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

var (
	ErrSessionActive = errors.New("a recording session is already active")
	ErrNotRecording  = errors.New("no recording in progress")
)

// StatusUpdater reflects session state in the UI (e.g., tray menu)
type StatusUpdater interface {
	EnableStart()
	DisableStart()
	SetStatus(s Status)
	SetProgress(width int)
}

// ArtifactSink receives each finished recording
type ArtifactSink interface {
	ArtifactReady(a recording.Artifact)
}

type Config struct {
	Capture       audio.Capture
	Sink          ArtifactSink
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater    // Optional - can be nil
	Now           func() time.Time // Optional - defaults to time.Now
}

// Controller owns one recording lifecycle at a time:
// Idle -> Requesting -> Recording -> Stopped -> Idle.
type Controller struct {
	capture audio.Capture
	sink    ArtifactSink
	log     zerolog.Logger
	status  StatusUpdater
	now     func() time.Time

	mu       sync.Mutex
	state    Status
	stream   audio.Stream
	encoder  *wavenc.Encoder
	notifier *progress.Notifier
	exports  sync.WaitGroup
}

func New(cfg Config) *Controller {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		capture: cfg.Capture,
		sink:    cfg.Sink,
		log:     cfg.Logger,
		status:  cfg.StatusUpdater,
		now:     now,
	}
}

// Status reports the current lifecycle state
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start disables the start control, asks for audio-only capture access and
// begins recording once it is granted. A denial returns the controller to
// Idle and re-enables the start control.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.state = Requesting
	c.mu.Unlock()

	if c.status != nil {
		c.status.DisableStart()
		c.status.SetStatus(Requesting)
	}

	c.log.Debug().Msg("Requesting capture access")

	// The lock is not held while the platform decides
	stream, err := c.capture.RequestAccess(ctx, audio.Constraints{Audio: true, Video: false})
	if err != nil {
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()

		c.log.Warn().Err(err).Msg("Capture access denied")
		if c.status != nil {
			c.status.SetStatus(Idle)
			c.status.EnableStart()
		}
		return fmt.Errorf("request capture access: %w", err)
	}

	// Access may be granted after the caller gave up (e.g., on shutdown)
	if err := ctx.Err(); err != nil {
		if relErr := stream.Release(); relErr != nil {
			c.log.Error().Err(relErr).Msg("Failed to release capture device")
		}
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()

		c.log.Info().Msg("Capture granted after cancellation, released")
		if c.status != nil {
			c.status.SetStatus(Idle)
			c.status.EnableStart()
		}
		return fmt.Errorf("request capture access: %w", err)
	}

	enc := wavenc.New(stream, wavenc.Options{NumChannels: 1})

	var n *progress.Notifier
	n = progress.New(c.setProgress, func() {
		if err := c.stop(n); err != nil && !errors.Is(err, ErrNotRecording) {
			c.log.Error().Err(err).Msg("Automatic stop failed")
		}
	})

	c.mu.Lock()
	c.stream = stream
	c.encoder = enc
	c.notifier = n
	c.state = Recording
	enc.Record()
	if err := n.Start(context.Background()); err != nil {
		// Fresh notifiers always start; keep recording without auto-stop
		c.log.Error().Err(err).Msg("Progress notifier failed to start")
	}
	c.mu.Unlock()

	c.log.Info().Int("sample_rate", stream.SampleRate()).Msg("Recording started")
	if c.status != nil {
		c.status.SetStatus(Recording)
	}
	return nil
}

// Stop ends the active recording: the notifier is cancelled, the encoder
// halted and the device released before the artifact is exported.
func (c *Controller) Stop() error {
	return c.stop(nil)
}

// Toggle starts when idle and stops when recording
func (c *Controller) Toggle(ctx context.Context) error {
	switch c.Status() {
	case Idle:
		return c.Start(ctx)
	case Recording:
		return c.Stop()
	default:
		return ErrSessionActive
	}
}

// stop is shared by manual and automatic stops. from is the notifier that
// fired, or nil for a manual stop; a notifier of an earlier session cannot
// stop the current one.
func (c *Controller) stop(from *progress.Notifier) error {
	c.mu.Lock()
	if c.state != Recording || (from != nil && from != c.notifier) {
		c.mu.Unlock()
		return ErrNotRecording
	}
	c.state = Stopped

	n, enc, stream := c.notifier, c.encoder, c.stream
	c.notifier, c.encoder, c.stream = nil, nil, nil

	if from == nil {
		n.Cancel()
	}
	enc.Stop()
	releaseErr := stream.Release()

	c.state = Idle
	c.exports.Add(1)
	c.mu.Unlock()

	if releaseErr != nil {
		c.log.Error().Err(releaseErr).Msg("Failed to release capture device")
	}

	c.log.Info().Bool("automatic", from != nil).Int("samples", enc.Len()).Msg("Recording stopped")
	if c.status != nil {
		c.status.SetProgress(0)
		c.status.SetStatus(Idle)
		c.status.EnableStart()
	}

	enc.Export(func(blob []byte, err error) {
		defer c.exports.Done()
		if err != nil {
			c.log.Error().Err(err).Msg("Failed to export recording")
			return
		}
		artifact := recording.NewArtifact(blob, c.now())
		c.log.Info().
			Str("name", artifact.Name()).
			Str("id", artifact.ID()).
			Int("bytes", artifact.Size()).
			Msg("Recording ready")
		if c.sink != nil {
			c.sink.ArtifactReady(artifact)
		}
	})
	return nil
}

// Wait blocks until every pending export has reached the sink
func (c *Controller) Wait() {
	c.exports.Wait()
}

func (c *Controller) setProgress(width int) {
	if c.status != nil {
		c.status.SetProgress(width)
	}
}
