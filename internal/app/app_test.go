package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/petems/sound-predict/internal/audio"
	"github.com/petems/sound-predict/internal/audio/audiotest"
	"github.com/petems/sound-predict/internal/config"
	"github.com/petems/sound-predict/internal/predict"
	"github.com/petems/sound-predict/internal/recording"
	"github.com/petems/sound-predict/internal/session"
	"github.com/rs/zerolog"
)

// Mock implementations for testing
type mockPredictor struct {
	mu      sync.Mutex
	submits []recording.Artifact
	healthy bool
}

func (m *mockPredictor) Submit(ctx context.Context, a recording.Artifact, sink predict.StatusSink) {
	m.mu.Lock()
	m.submits = append(m.submits, a)
	m.mu.Unlock()
	sink.SetStatus(a.ID(), recording.Status{Text: predict.UploadedText, Tone: recording.ToneSuccess})
	sink.SetStatus(a.ID(), recording.Status{Text: predict.PredictedText("siren"), Tone: recording.ToneSuccess})
}

func (m *mockPredictor) Health(ctx context.Context) (predict.Reply, error) {
	if !m.healthy {
		return predict.Reply{}, &predict.Failure{StatusText: "error", Err: "connection refused"}
	}
	return predict.Reply{Message: "up"}, nil
}

func (m *mockPredictor) submitted() []recording.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recording.Artifact(nil), m.submits...)
}

type mockDeviceCapture struct {
	audiotest.Capture
	device string
}

func (m *mockDeviceCapture) SetDevice(id string) { m.device = id }

// slowGrantCapture grants access after a delay regardless of ctx
type slowGrantCapture struct {
	audiotest.Capture
	delay time.Duration
}

func (c *slowGrantCapture) RequestAccess(ctx context.Context, cons audio.Constraints) (audio.Stream, error) {
	time.Sleep(c.delay)
	return c.Capture.RequestAccess(context.Background(), cons)
}

func newTestApp(t *testing.T, capture audio.Capture, pred Predictor) *App {
	t.Helper()
	cfg := config.Default()
	cfg.RecordingsDir = t.TempDir()
	return New(Config{
		Audio:      capture,
		Predictor:  pred,
		Recordings: recording.NewList(cfg.RecordingsDir),
		Config:     cfg,
		Logger:     zerolog.Nop(),
	})
}

// waitFor polls cond for up to timeout
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestToggleRecordsAndStoresArtifact(t *testing.T) {
	capture := &audiotest.Capture{}
	app := newTestApp(t, capture, &mockPredictor{})

	// Initially not recording
	if app.IsRecording() {
		t.Error("App should not be recording initially")
	}

	// First toggle - should start recording
	app.ToggleRecording()
	if !waitFor(time.Second, app.IsRecording) {
		t.Fatal("App should be recording after first toggle")
	}

	// Second toggle - should stop recording
	app.ToggleRecording()
	if !waitFor(time.Second, func() bool { return !app.IsRecording() }) {
		t.Fatal("App should have stopped recording after second toggle")
	}

	if !waitFor(2*time.Second, func() bool { return len(app.Recordings()) == 1 }) {
		t.Fatalf("expected 1 recording, got %d", len(app.Recordings()))
	}
	if !capture.Streams()[0].Released() {
		t.Error("capture stream should be released after stop")
	}
}

func TestDeniedAccessLeavesAppIdle(t *testing.T) {
	capture := &audiotest.Capture{Err: audio.ErrAccessDenied}
	app := newTestApp(t, capture, &mockPredictor{})

	app.ToggleRecording()
	if !waitFor(time.Second, func() bool { return len(capture.Constraints()) == 1 }) {
		t.Fatal("expected one access request")
	}
	time.Sleep(20 * time.Millisecond)

	if app.IsRecording() {
		t.Error("App must not record after a denial")
	}
	if err := app.ctrl.Stop(); err == nil {
		t.Error("expected stop to fail when nothing is recording")
	}
}

func TestPredictWritesStatus(t *testing.T) {
	pred := &mockPredictor{}
	app := newTestApp(t, &audiotest.Capture{}, pred)

	artifact := recording.NewArtifact([]byte("RIFF"), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	app.ArtifactReady(artifact)

	if err := app.Predict(artifact.ID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok := waitFor(time.Second, func() bool {
		e, found := app.list.Get(artifact.ID())
		return found && e.Status.Text == "Predicted label is : 'siren'"
	})
	if !ok {
		t.Fatal("expected predicted status on the entry")
	}
	if n := len(pred.submitted()); n != 1 {
		t.Fatalf("expected 1 submit, got %d", n)
	}
}

func TestPredictUnknownRecording(t *testing.T) {
	app := newTestApp(t, &audiotest.Capture{}, &mockPredictor{})
	if err := app.Predict("nope"); err == nil {
		t.Fatal("expected error for unknown recording")
	}
}

func TestSetDeviceRefusedWhileRecording(t *testing.T) {
	capture := &mockDeviceCapture{}
	app := newTestApp(t, capture, &mockPredictor{})

	if err := app.SetDevice("USB Mic"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capture.device != "USB Mic" || app.cfg.Audio.DeviceID != "USB Mic" {
		t.Fatalf("expected device to be applied, got %q / %q", capture.device, app.cfg.Audio.DeviceID)
	}

	app.ToggleRecording()
	if !waitFor(time.Second, app.IsRecording) {
		t.Fatal("App should be recording")
	}
	if err := app.SetDevice("Other"); err == nil {
		t.Error("expected device change to be refused while recording")
	}
	if err := app.ctrl.Stop(); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
}

func TestShutdownStopsRecording(t *testing.T) {
	capture := &audiotest.Capture{}
	app := newTestApp(t, capture, &mockPredictor{})

	app.ToggleRecording()
	if !waitFor(time.Second, app.IsRecording) {
		t.Fatal("App should be recording")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if app.IsRecording() {
		t.Error("App should not be recording after shutdown")
	}
	if len(app.Recordings()) != 1 {
		t.Errorf("expected the in-flight recording to be kept, got %d", len(app.Recordings()))
	}
}

func TestShutdownDuringAccessRequest(t *testing.T) {
	capture := &slowGrantCapture{delay: 50 * time.Millisecond}
	app := newTestApp(t, capture, &mockPredictor{})

	app.ToggleRecording()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if app.Status() != session.Idle {
		t.Errorf("expected idle after shutdown, got %s", app.Status())
	}
	streams := capture.Streams()
	if len(streams) != 1 {
		t.Fatalf("expected 1 granted stream, got %d", len(streams))
	}
	if !streams[0].Released() {
		t.Error("stream granted during shutdown must be released")
	}
	if len(app.Recordings()) != 0 {
		t.Errorf("expected no recordings, got %d", len(app.Recordings()))
	}
}

func TestCheckHealth(t *testing.T) {
	pred := &mockPredictor{}
	app := newTestApp(t, &audiotest.Capture{}, pred)

	if err := app.CheckHealth(context.Background()); err == nil {
		t.Error("expected error when service is down")
	}
	pred.healthy = true
	if err := app.CheckHealth(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
