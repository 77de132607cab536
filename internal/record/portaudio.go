package record

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio is the default-input-device implementation of Device.
type PortAudio struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewPortAudio returns a device reading 1024-sample frames.
func NewPortAudio(sampleRate, channels int) *PortAudio {
	return &PortAudio{SampleRate: sampleRate, Channels: channels, FramesPerBuffer: 1024}
}

// Open starts a callback stream on the default input device.
func (p *PortAudio) Open(onFrame func([]int16)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return errors.New("stream already open")
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init failed: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(p.Channels, 0, float64(p.SampleRate), p.FramesPerBuffer, func(in []int16) {
		onFrame(in)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("open stream failed: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start stream failed: %w", err)
	}
	p.stream = stream
	return nil
}

// Close stops the stream. No callback runs after it returns.
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	stream := p.stream
	p.stream = nil
	errStop := stream.Stop()
	errClose := stream.Close()
	errTerm := portaudio.Terminate()
	return errors.Join(errStop, errClose, errTerm)
}

// HasInput reports the default input device name, or an error when no
// microphone is present.
func HasInput() (string, error) {
	if err := portaudio.Initialize(); err != nil {
		return "", fmt.Errorf("portaudio init failed: %w", err)
	}
	defer portaudio.Terminate()
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if dev == nil || dev.MaxInputChannels < 1 {
		return "", ErrDeviceUnavailable
	}
	return dev.Name, nil
}
