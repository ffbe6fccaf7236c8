package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/petems/sound-predict/internal/audio"
	"github.com/petems/sound-predict/internal/config"
	"github.com/petems/sound-predict/internal/predict"
	"github.com/petems/sound-predict/internal/recording"
	"github.com/petems/sound-predict/internal/session"
	"github.com/rs/zerolog"
)

// Predictor runs the upload/predict workflow for one recording
type Predictor interface {
	Submit(ctx context.Context, a recording.Artifact, sink predict.StatusSink)
	Health(ctx context.Context) (predict.Reply, error)
}

// deviceSetter is implemented by captures that can switch input devices
type deviceSetter interface {
	SetDevice(deviceID string)
}

type Config struct {
	Audio         audio.Capture
	Predictor     Predictor
	Recordings    *recording.List
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater session.StatusUpdater // Optional - can be nil
	SaveConfig    func() error          // Optional - persists Config after tray changes
}

type App struct {
	audio  audio.Capture
	pred   Predictor
	list   *recording.List
	cfg    *config.Config
	log    zerolog.Logger
	save   func() error
	ctrl   *session.Controller
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	wg sync.WaitGroup
}

func New(cfg Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		audio:  cfg.Audio,
		pred:   cfg.Predictor,
		list:   cfg.Recordings,
		cfg:    cfg.Config,
		log:    cfg.Logger,
		save:   cfg.SaveConfig,
		ctx:    ctx,
		cancel: cancel,
	}
	a.ctrl = session.New(session.Config{
		Capture:       cfg.Audio,
		Sink:          a,
		Logger:        cfg.Logger,
		StatusUpdater: cfg.StatusUpdater,
	})
	return a
}

// ToggleRecording starts a recording when idle and stops it when recording.
// It returns immediately; the access request runs in the background.
func (a *App) ToggleRecording() {
	a.goSafe(func() {
		if err := a.ctrl.Toggle(a.ctx); err != nil {
			a.logToggleError(err)
		}
	})
}

func (a *App) logToggleError(err error) {
	switch {
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrNotRecording):
		a.log.Debug().Err(err).Msg("Ignored record action")
	case errors.Is(err, audio.ErrAccessDenied):
		// Already reported by the controller; the start control is enabled again
	default:
		a.log.Error().Err(err).Msg("Record action failed")
	}
}

// ArtifactReady stores a finished recording and renders its entry
func (a *App) ArtifactReady(artifact recording.Artifact) {
	entry, err := a.list.Append(artifact)
	if err != nil {
		a.log.Error().Err(err).Str("name", artifact.Name()).Msg("Failed to store recording")
		return
	}
	a.log.Info().Str("path", entry.Path).Msg("Recording saved")
}

// Predict uploads the recording with the given id and fetches its label in
// the background. Progress is written to the recording's status line.
func (a *App) Predict(id string) error {
	entry, ok := a.list.Get(id)
	if !ok {
		return fmt.Errorf("unknown recording: %s", id)
	}
	a.goSafe(func() {
		a.pred.Submit(a.ctx, entry.Artifact, a.list)
	})
	return nil
}

// CheckHealth logs whether the prediction service answers
func (a *App) CheckHealth(ctx context.Context) error {
	reply, err := a.pred.Health(ctx)
	if err != nil {
		a.log.Warn().Err(err).Str("base_url", a.cfg.BaseURL).Msg("Prediction service unreachable")
		return err
	}
	a.log.Info().Str("message", reply.Message).Msg("Prediction service is up")
	return nil
}

func (a *App) goSafe(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Shutdown cancels pending requests, stops an active recording and waits
// for background work until ctx expires. A start still waiting on capture
// access gives the device back once it is granted.
func (a *App) Shutdown(ctx context.Context) error {
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		if a.IsRecording() {
			if err := a.ctrl.Stop(); err != nil && !errors.Is(err, session.ErrNotRecording) {
				a.log.Error().Err(err).Msg("Failed to stop recording on shutdown")
			}
		}
		a.ctrl.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tray actions

func (a *App) SetDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Status() != session.Idle {
		return fmt.Errorf("cannot change while recording")
	}

	a.cfg.Audio.DeviceID = id
	if ds, ok := a.audio.(deviceSetter); ok {
		ds.SetDevice(id)
	}
	if a.save != nil {
		return a.save()
	}
	return nil
}

func (a *App) IsRecording() bool {
	return a.ctrl.Status() == session.Recording
}

func (a *App) Status() session.Status {
	return a.ctrl.Status()
}

func (a *App) Recordings() []recording.Entry {
	return a.list.Entries()
}

func (a *App) RecordingsDir() string {
	return a.list.Dir()
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	return a.audio.ListDevices()
}
