package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/sound-predict/internal/config"
	"github.com/petems/sound-predict/internal/permissions"
	"github.com/rs/zerolog"
)

const framesPerBuffer = 512

type portAudioCapture struct {
	cfg config.AudioConfig
	log zerolog.Logger
}

// New creates a new PortAudio-based audio capture
func New(cfg config.AudioConfig, log zerolog.Logger) (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{cfg: cfg, log: log}, nil
}

// SetDevice changes the device used by the next RequestAccess
func (p *portAudioCapture) SetDevice(deviceID string) {
	p.cfg.DeviceID = deviceID
}

func (p *portAudioCapture) RequestAccess(ctx context.Context, c Constraints) (Stream, error) {
	if c.Video {
		return nil, fmt.Errorf("video capture is not supported")
	}
	if !c.Audio {
		return nil, fmt.Errorf("no tracks requested")
	}

	if err := permissions.RequestMicrophone(ctx); err != nil {
		if errors.Is(err, permissions.ErrMicrophoneDenied) {
			return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
		return nil, err
	}

	device, err := p.findDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}

	s, err := openStream(device, p.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}

	p.log.Debug().
		Str("device", device.Name).
		Int("sample_rate", p.cfg.SampleRate).
		Int("device_channels", s.deviceChannels).
		Msg("Capture stream opened")

	go s.readLoop()
	return s, nil
}

func (p *portAudioCapture) findDevice() (*portaudio.DeviceInfo, error) {
	if p.cfg.DeviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == p.cfg.DeviceID && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", p.cfg.DeviceID)
}

func (p *portAudioCapture) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioCapture) Close() error {
	return portaudio.Terminate()
}

// ===== STREAM =====

type portAudioStream struct {
	stream         *portaudio.Stream
	buffer         []float32
	deviceChannels int
	sampleRate     int

	out     chan []float32
	done    chan struct{}
	exited  chan struct{}
	release sync.Once
	err     error
}

// openStream opens the device in mono, falling back to stereo (downmixed)
// for devices that refuse a single channel.
func openStream(device *portaudio.DeviceInfo, sampleRate int) (*portAudioStream, error) {
	var lastErr error
	for _, channels := range []int{1, 2} {
		if channels > device.MaxInputChannels {
			break
		}
		buffer := make([]float32, framesPerBuffer*channels)
		stream, err := portaudio.OpenStream(portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   device,
				Channels: channels,
				Latency:  device.DefaultLowInputLatency,
			},
			SampleRate:      float64(sampleRate),
			FramesPerBuffer: framesPerBuffer,
		}, buffer)
		if err != nil {
			lastErr = err
			continue
		}
		if err := stream.Start(); err != nil {
			stream.Close()
			return nil, fmt.Errorf("failed to start audio stream: %w", err)
		}
		return &portAudioStream{
			stream:         stream,
			buffer:         buffer,
			deviceChannels: channels,
			sampleRate:     sampleRate,
			out:            make(chan []float32, 64),
			done:           make(chan struct{}),
			exited:         make(chan struct{}),
		}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("device %s has no input channels", device.Name)
	}
	return nil, fmt.Errorf("failed to open audio stream: %w", lastErr)
}

func (s *portAudioStream) readLoop() {
	defer close(s.exited)
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			return
		}
		samples := downmixInterleaved(s.buffer, s.deviceChannels, framesPerBuffer)

		select {
		case s.out <- samples:
		case <-s.done:
			return
		}
	}
}

func (s *portAudioStream) Samples() <-chan []float32 { return s.out }

func (s *portAudioStream) SampleRate() int { return s.sampleRate }

func (s *portAudioStream) Channels() int { return 1 }

// Release stops the track and closes the device; safe to call repeatedly
func (s *portAudioStream) Release() error {
	s.release.Do(func() {
		close(s.done)
		<-s.exited
		if err := s.stream.Stop(); err != nil {
			s.err = fmt.Errorf("failed to stop audio stream: %w", err)
		}
		if err := s.stream.Close(); err != nil && s.err == nil {
			s.err = fmt.Errorf("failed to close audio stream: %w", err)
		}
	})
	return s.err
}

// downmixInterleaved averages interleaved frames into a fresh mono slice
func downmixInterleaved(input []float32, channels, frames int) []float32 {
	out := make([]float32, frames)
	if channels <= 1 {
		copy(out, input)
		return out
	}
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += input[f*channels+c]
		}
		out[f] = sum / float32(channels)
	}
	return out
}
