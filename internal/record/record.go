// Package record captures microphone audio into an in-memory buffer while a
// hotkey is held and encodes it for upload.
package record

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrDeviceUnavailable wraps any failure to open the capture device.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrNotRecording is returned by Stop when no capture is running.
	ErrNotRecording = errors.New("not recording")
	// ErrAlreadyRecording is returned by Start when a capture is running.
	ErrAlreadyRecording = errors.New("already recording")
)

// Device is an audio input that delivers frames to onFrame from its own
// goroutine or thread until Close returns.
type Device interface {
	Open(onFrame func(frame []int16)) error
	Close() error
}

// Buffer is one utterance of interleaved 16-bit PCM.
type Buffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
	Frames     int
}

// Empty reports whether nothing was captured.
func (b Buffer) Empty() bool { return b.Frames == 0 || len(b.Samples) == 0 }

// Duration is the length of the captured audio.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	n := len(b.Samples) / b.Channels
	return time.Duration(n) * time.Second / time.Duration(b.SampleRate)
}

// Capture queues device frames between Start and Stop.
type Capture struct {
	dev        Device
	sampleRate int
	channels   int

	mu     sync.Mutex
	queue  [][]int16
	active bool
}

// NewCapture wraps dev. sampleRate and channels describe its frames.
func NewCapture(dev Device, sampleRate, channels int) *Capture {
	return &Capture{dev: dev, sampleRate: sampleRate, channels: channels}
}

// Start clears stale frames and opens the device.
func (c *Capture) Start() error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.queue = nil
	c.active = true
	c.mu.Unlock()

	if err := c.dev.Open(c.enqueue); err != nil {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

// enqueue runs on the audio callback thread. The device reuses its buffer,
// so the frame is copied before it is queued.
func (c *Capture) enqueue(frame []int16) {
	cp := make([]int16, len(frame))
	copy(cp, frame)
	c.mu.Lock()
	if c.active {
		c.queue = append(c.queue, cp)
	}
	c.mu.Unlock()
}

// Stop closes the device and then drains every queued frame into one Buffer.
// A close error is returned alongside whatever was captured.
func (c *Capture) Stop() (Buffer, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return Buffer{}, ErrNotRecording
	}
	c.mu.Unlock()

	closeErr := c.dev.Close()

	c.mu.Lock()
	c.active = false
	frames := c.queue
	c.queue = nil
	c.mu.Unlock()

	total := 0
	for _, f := range frames {
		total += len(f)
	}
	buf := Buffer{
		Samples:    make([]int16, 0, total),
		SampleRate: c.sampleRate,
		Channels:   c.channels,
		Frames:     len(frames),
	}
	for _, f := range frames {
		buf.Samples = append(buf.Samples, f...)
	}
	if closeErr != nil {
		return buf, fmt.Errorf("close device: %w", closeErr)
	}
	return buf, nil
}

// Active reports whether a capture is running.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
