// Package wavenc accumulates samples from a live capture stream and
// exports them as a 16-bit PCM WAV blob.
package wavenc

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	internalaudio "github.com/petems/sound-predict/internal/audio"
)

const (
	bitDepth       = 16
	wavPCMFormat   = 1
	maxSampleValue = 32767
)

// Options configures an Encoder
type Options struct {
	NumChannels int
}

// Encoder owns the sample accumulator fed by a capture stream
type Encoder struct {
	src      internalaudio.Stream
	channels int

	mu        sync.Mutex
	samples   []float32
	recording bool
	started   bool
}

// New wires src into a fresh accumulator. Nothing is read until Record.
func New(src internalaudio.Stream, opts Options) *Encoder {
	channels := opts.NumChannels
	if channels <= 0 {
		channels = 1
	}
	return &Encoder{
		src:      src,
		channels: channels,
		samples:  make([]float32, 0, src.SampleRate()*channels*2),
	}
}

// Record begins accumulating. Calling it again after Stop resumes.
func (e *Encoder) Record() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.recording = true
	if e.started {
		return
	}
	e.started = true
	go e.drain()
}

// drain consumes the stream until it is released, keeping only the
// frames that arrive while recording.
func (e *Encoder) drain() {
	for chunk := range e.src.Samples() {
		e.mu.Lock()
		if e.recording {
			e.samples = append(e.samples, chunk...)
		}
		e.mu.Unlock()
	}
}

// Stop halts accumulation; later frames from the stream are discarded
func (e *Encoder) Stop() {
	e.mu.Lock()
	e.recording = false
	e.mu.Unlock()
}

// Len reports the number of accumulated samples
func (e *Encoder) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// Export finalizes the accumulated samples into a WAV blob and hands it to
// onReady from a separate goroutine.
func (e *Encoder) Export(onReady func(blob []byte, err error)) {
	e.mu.Lock()
	snapshot := make([]float32, len(e.samples))
	copy(snapshot, e.samples)
	e.mu.Unlock()

	sampleRate := e.src.SampleRate()
	channels := e.channels
	go func() {
		onReady(EncodeWAV(snapshot, sampleRate, channels))
	}()
}

// EncodeWAV renders float samples in [-1, 1] as a WAV blob
func EncodeWAV(samples []float32, sampleRate, channels int) ([]byte, error) {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = toPCM16(s)
	}
	return encodeInts(data, sampleRate, channels)
}

func encodeInts(data []int, sampleRate, channels int) ([]byte, error) {
	// The wav encoder seeks back to patch chunk sizes, so it needs a file
	file, err := os.CreateTemp("", "sound_predict_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	enc := wav.NewEncoder(file, sampleRate, bitDepth, channels, wavPCMFormat)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	blob, err := os.ReadFile(file.Name())
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	return blob, nil
}

func toPCM16(s float32) int {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int(s * maxSampleValue)
}
