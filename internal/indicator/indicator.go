// Package indicator shows the session state. All drawing happens on the
// goroutine running Controller.Run; other goroutines only enqueue commands.
package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is what the indicator displays.
type State int

const (
	StateHidden State = iota
	StateRecording
	StateProcessing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	}
	return "hidden"
}

// PulseInterval is the animation tick while recording.
const PulseInterval = 500 * time.Millisecond

// Update is one frame handed to a Renderer.
type Update struct {
	State State
	Text  string
	// Pulse counts animation ticks since the state was shown.
	Pulse int
}

// Visible reports whether anything should be drawn.
func (u Update) Visible() bool { return u.State != StateHidden }

// Renderer draws updates. It is only ever called from Run.
type Renderer interface {
	Render(u Update)
}

// RendererFunc adapts a func to Renderer.
type RendererFunc func(u Update)

func (f RendererFunc) Render(u Update) { f(u) }

// Multi fans updates out to several renderers in order.
type Multi []Renderer

func (m Multi) Render(u Update) {
	for _, r := range m {
		r.Render(u)
	}
}

type command struct {
	hide  bool
	state State
	text  string
	// gen ties a delayed hide to the Show it was scheduled after.
	gen uint64
}

// Controller queues indicator commands for a single render loop.
type Controller struct {
	r     Renderer
	pulse time.Duration
	log   *slog.Logger

	mu     sync.Mutex
	queue  []command
	gen    uint64
	signal chan struct{}
	flush  chan chan struct{}
}

// New returns a Controller drawing through r.
func New(r Renderer, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		r:      r,
		pulse:  PulseInterval,
		log:    log.With("component", "indicator"),
		signal: make(chan struct{}, 1),
		flush:  make(chan chan struct{}),
	}
}

// Show displays state with text. Safe for concurrent use.
func (c *Controller) Show(state State, text string) {
	c.mu.Lock()
	c.gen++
	c.queue = append(c.queue, command{state: state, text: text, gen: c.gen})
	c.mu.Unlock()
	c.wake()
}

// Hide clears the indicator.
func (c *Controller) Hide() {
	c.mu.Lock()
	c.gen++
	c.queue = append(c.queue, command{hide: true, gen: c.gen})
	c.mu.Unlock()
	c.wake()
}

// HideAfter hides the indicator after d unless something else is shown
// first. The timer only enqueues; it never draws.
func (c *Controller) HideAfter(d time.Duration) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	time.AfterFunc(d, func() {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.queue = append(c.queue, command{hide: true, gen: gen})
		c.mu.Unlock()
		c.wake()
	})
}

func (c *Controller) wake() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *Controller) drain() []command {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queue
	c.queue = nil
	return q
}

// Flush blocks until Run has rendered every command queued before the call,
// or until timeout. It reports whether the queue was rendered.
func (c *Controller) Flush(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	done := make(chan struct{})
	select {
	case c.flush <- done:
	case <-t.C:
		return false
	}
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Run renders queued commands in order until ctx is done, then hides the
// indicator.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.pulse)
	defer ticker.Stop()

	var cur Update
	render := func() {
		for _, cmd := range c.drain() {
			if cmd.hide {
				cur = Update{}
			} else {
				cur = Update{State: cmd.state, Text: cmd.text}
			}
			c.log.Debug("render", "state", cur.State, "text", cur.Text)
			c.r.Render(cur)
		}
	}
	for {
		select {
		case <-ctx.Done():
			if cur.Visible() {
				c.r.Render(Update{})
			}
			return nil
		case <-c.signal:
			render()
		case done := <-c.flush:
			render()
			close(done)
		case <-ticker.C:
			if cur.State == StateRecording {
				cur.Pulse++
				c.r.Render(cur)
			}
		}
	}
}
