package indicator

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type frames struct {
	mu  sync.Mutex
	got []Update
	ch  chan Update
}

func newFrames() *frames { return &frames{ch: make(chan Update, 64)} }

func (f *frames) Render(u Update) {
	f.mu.Lock()
	f.got = append(f.got, u)
	f.mu.Unlock()
	f.ch <- u
}

func (f *frames) next(t *testing.T) Update {
	t.Helper()
	select {
	case u := <-f.ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for render")
	}
	return Update{}
}

func start(t *testing.T, c *Controller) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestRendersInOrder(t *testing.T) {
	f := newFrames()
	c := New(f, nil)
	c.pulse = time.Hour
	c.Show(StateRecording, "Listening (General)")
	c.Show(StateProcessing, "Processing...")
	c.Show(StateDone, "Done...")
	c.Hide()
	start(t, c)

	want := []State{StateRecording, StateProcessing, StateDone, StateHidden}
	for _, s := range want {
		if u := f.next(t); u.State != s {
			t.Fatalf("got %v, want %v", u.State, s)
		}
	}
}

func TestPulseWhileRecording(t *testing.T) {
	f := newFrames()
	c := New(f, nil)
	c.pulse = 10 * time.Millisecond
	start(t, c)
	c.Show(StateRecording, "Listening (General)")
	if u := f.next(t); u.Pulse != 0 {
		t.Fatalf("first frame pulse %d", u.Pulse)
	}
	if u := f.next(t); u.State != StateRecording || u.Pulse != 1 {
		t.Fatalf("unexpected pulse frame %+v", u)
	}
}

func TestHideAfterSkippedByNewerShow(t *testing.T) {
	f := newFrames()
	c := New(f, nil)
	c.pulse = time.Hour
	start(t, c)

	c.Show(StateError, "MIC ERROR")
	c.HideAfter(20 * time.Millisecond)
	c.Show(StateProcessing, "Processing...")
	f.next(t)
	f.next(t)

	select {
	case u := <-f.ch:
		t.Fatalf("stale hide rendered %+v", u)
	case <-time.After(80 * time.Millisecond):
	}

	c.HideAfter(10 * time.Millisecond)
	if u := f.next(t); u.Visible() {
		t.Fatalf("expected hide, got %+v", u)
	}
}

func TestConsoleRenderer(t *testing.T) {
	var buf bytes.Buffer
	Console{W: &buf}.Render(Update{State: StateError, Text: "MIC ERROR"})
	if !strings.Contains(buf.String(), "MIC ERROR") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	buf.Reset()
	Console{W: &buf}.Render(Update{})
	if buf.String() != "\r\033[K" {
		t.Fatalf("hidden frame should only clear the line, got %q", buf.String())
	}
}

func TestFlushRendersQueuedHide(t *testing.T) {
	f := newFrames()
	c := New(f, nil)
	c.pulse = time.Hour
	start(t, c)

	c.Show(StateRecording, "Listening (General)")
	c.Hide()
	if !c.Flush(time.Second) {
		t.Fatal("flush timed out")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.got) == 0 || f.got[len(f.got)-1].Visible() {
		t.Fatalf("last frame should hide, got %+v", f.got)
	}
}

func TestFlushWithoutRunTimesOut(t *testing.T) {
	c := New(newFrames(), nil)
	if c.Flush(20 * time.Millisecond) {
		t.Fatal("flush reported success with no render loop")
	}
}
