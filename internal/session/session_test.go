package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dictate/internal/action"
	"dictate/internal/asr"
	"dictate/internal/config"
	"dictate/internal/history"
	"dictate/internal/hotkey"
	"dictate/internal/keys"
	"dictate/internal/pipeline"
	"dictate/internal/record"
	"dictate/internal/remote"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeRecorder struct {
	mu       sync.Mutex
	startErr error
	frames   int
	starts   int
	stops    int
}

func (f *fakeRecorder) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeRecorder) set(frames int, startErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = frames
	f.startErr = startErr
}

func (f *fakeRecorder) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func (f *fakeRecorder) Stop() (record.Buffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	buf := record.Buffer{SampleRate: 16000, Channels: 1, Frames: f.frames}
	for i := 0; i < f.frames; i++ {
		buf.Samples = append(buf.Samples, make([]int16, 160)...)
	}
	return buf, nil
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(ctx context.Context, buf record.Buffer) (record.Clip, error) {
	return record.Clip{}, nil
}

type clipboardSink struct {
	mu    sync.Mutex
	texts []string
}

func (c *clipboardSink) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *clipboardSink) Paste() error { return nil }

type events struct {
	ch chan Event
}

func (e *events) Notify(ev Event) { e.ch <- ev }

func (e *events) expect(t *testing.T, kinds ...EventKind) []Event {
	t.Helper()
	var got []Event
	for _, k := range kinds {
		select {
		case ev := <-e.ch:
			if ev.Kind != k {
				t.Fatalf("got event %v, want %v (so far %v)", ev.Kind, k, got)
			}
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", k)
		}
	}
	return got
}

type harness struct {
	s          *Session
	rec        *fakeRecorder
	ev         *events
	keys       chan keys.Event
	store      *history.Store
	clip       *clipboardSink
	transcribe atomic.Int32
	exitCode   atomic.Int32
	gate       chan struct{}
	done       chan error

	// Set before the first key event is sent.
	failWith error
	settings Settings
}

func newHarness(t *testing.T, profiles []config.Profile, transcript string) *harness {
	return newGatedHarness(t, profiles, transcript, nil)
}

// newGatedHarness blocks every transcription until gate is closed.
func newGatedHarness(t *testing.T, profiles []config.Profile, transcript string, gate chan struct{}) *harness {
	t.Helper()
	reg, err := hotkey.NewRegistry(profiles)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		rec:   &fakeRecorder{frames: 3},
		ev:    &events{ch: make(chan Event, 32)},
		keys:  make(chan keys.Event),
		store: history.NewStore(filepath.Join(t.TempDir(), "history.log"), 5, 1),
		clip:  &clipboardSink{},
		gate:  gate,
		done:  make(chan error, 1),
	}
	h.exitCode.Store(-1)

	disp := action.NewDispatcher(h.clip, h.clip, h.store, quiet())
	disp.Settle = 0
	proc := &pipeline.Processor{
		Transcriber: asr.Func(func(ctx context.Context, model, path string) (string, error) {
			h.transcribe.Add(1)
			if h.gate != nil {
				select {
				case <-h.gate:
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			if h.failWith != nil {
				return "", h.failWith
			}
			return transcript, nil
		}),
		Log: quiet(),
	}
	h.settings = Settings{
		Pipeline: pipeline.Settings{
			STTModel: "whisper",
			Policy:   remote.Policy{MaxRetries: 1},
		},
		Mode:       action.ModeType,
		LogHistory: true,
	}
	h.s, err = New(Config{
		Registry:   reg,
		Recorder:   h.rec,
		Encoder:    fakeEncoder{},
		Processor:  proc,
		Dispatcher: disp,
		Settings:   func() Settings { return h.settings },
		Notifier:   h.ev,
		Exit:       func(code int) { h.exitCode.Store(int32(code)) },
		Log:        quiet(),
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- h.s.Run(ctx, h.keys) }()
	t.Cleanup(func() {
		cancel()
		h.s.Wait()
	})
	return h
}

func (h *harness) down(tok string) { h.keys <- keys.Event{Key: keys.ParseToken(tok), Down: true} }
func (h *harness) up(tok string)   { h.keys <- keys.Event{Key: keys.ParseToken(tok), Down: false} }

var general = []config.Profile{{Name: "General", Hotkey: []string{"ctrl_l", "grave"}}}

func TestUtteranceEndToEnd(t *testing.T) {
	h := newHarness(t, general, "hello world")

	h.down("ctrl_l")
	h.down("grave")
	started := h.ev.expect(t, EventRecordingStarted)
	if started[0].Profile != "General" || h.s.State() != StateRecording {
		t.Fatalf("unexpected start %+v in state %v", started[0], h.s.State())
	}

	h.up("grave")
	h.ev.expect(t, EventProcessing)
	done := h.ev.expect(t, EventDone, EventIdle)
	if done[0].Text != "hello world" {
		t.Fatalf("unexpected text %q", done[0].Text)
	}
	if h.s.State() != StateIdle {
		t.Fatalf("state %v after idle event", h.s.State())
	}

	entries, err := h.store.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d", len(entries))
	}
	e := entries[0]
	if e.RawText != "hello world" || e.RefinedText != "hello world" || e.ProfileName != "General" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if len(h.clip.texts) != 1 || h.clip.texts[0] != "hello world" {
		t.Fatalf("unexpected clipboard %v", h.clip.texts)
	}
}

func TestNoOverlappingRecordings(t *testing.T) {
	gate := make(chan struct{})
	h := newGatedHarness(t, general, "hello", gate)

	h.down("ctrl_l")
	h.down("grave")
	h.ev.expect(t, EventRecordingStarted)
	h.down("grave")
	h.up("ctrl_l")
	h.ev.expect(t, EventProcessing)
	h.down("ctrl_l")
	h.down("grave")
	if st := h.s.State(); st != StateProcessing {
		t.Fatalf("state %v while worker is busy", st)
	}
	close(gate)
	h.ev.expect(t, EventDone, EventIdle)

	if starts, _ := h.rec.counts(); starts != 1 {
		t.Fatalf("recorder started %d times", starts)
	}
}

func TestNoAudioSkipsRemote(t *testing.T) {
	h := newHarness(t, general, "unused")
	h.rec.set(0, nil)

	h.down("ctrl_l")
	h.down("grave")
	h.ev.expect(t, EventRecordingStarted)
	h.up("ctrl_l")
	h.ev.expect(t, EventNoAudio)

	if h.s.State() != StateIdle {
		t.Fatalf("state %v", h.s.State())
	}
	h.s.Wait()
	if n := h.transcribe.Load(); n != 0 {
		t.Fatalf("transcribe called %d times", n)
	}
}

func TestDeviceFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, general, "unused")
	h.rec.set(3, record.ErrDeviceUnavailable)

	h.down("ctrl_l")
	h.down("grave")
	ev := h.ev.expect(t, EventDeviceError)
	if !errors.Is(ev[0].Err, record.ErrDeviceUnavailable) {
		t.Fatalf("unexpected error %v", ev[0].Err)
	}
	if h.s.State() != StateIdle {
		t.Fatalf("state %v", h.s.State())
	}
}

func TestEmptyTranscript(t *testing.T) {
	h := newHarness(t, general, "")

	h.down("ctrl_l")
	h.down("grave")
	h.up("grave")
	h.ev.expect(t, EventRecordingStarted, EventProcessing, EventEmptyTranscript, EventIdle)
	if entries, _ := h.store.Entries(); len(entries) != 0 {
		t.Fatalf("history written for empty transcript: %+v", entries)
	}
}

func TestFirstMatchingProfileWins(t *testing.T) {
	h := newHarness(t, []config.Profile{
		{Name: "Email", Hotkey: []string{"ctrl_l", "alt_l", "e"}},
		{Name: "Short", Hotkey: []string{"alt_l", "e"}},
	}, "x")

	h.down("ctrl_l")
	h.down("alt_l")
	h.down("e")
	ev := h.ev.expect(t, EventRecordingStarted)
	if ev[0].Profile != "Email" {
		t.Fatalf("matched %q", ev[0].Profile)
	}
	h.up("e")
	h.ev.expect(t, EventProcessing, EventDone, EventIdle)
}

func TestSafeExitWhileRecording(t *testing.T) {
	h := newHarness(t, general, "unused")

	h.down("ctrl_l")
	h.down("grave")
	h.ev.expect(t, EventRecordingStarted)
	h.down("alt_l")
	h.down("0")
	h.ev.expect(t, EventSafeExit)

	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if h.exitCode.Load() != 0 {
		t.Fatalf("exit code %d", h.exitCode.Load())
	}
	if _, stops := h.rec.counts(); stops != 1 {
		t.Fatalf("capture not stopped: %d", stops)
	}
	if h.s.State() != StateIdle {
		t.Fatalf("state %v", h.s.State())
	}
}

func TestRateLimitedTranscriptionAborts(t *testing.T) {
	h := newHarness(t, general, "unused")
	h.failWith = &remote.Error{Op: "transcribe", Kind: remote.KindRateLimited, StatusCode: 429, Err: errors.New("slow down")}
	h.settings.Pipeline.Policy = remote.Policy{
		MaxRetries: 3,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}

	h.down("ctrl_l")
	h.down("grave")
	h.up("grave")
	got := h.ev.expect(t, EventRecordingStarted, EventProcessing, EventAborted, EventIdle)

	var exhausted *remote.RetryExhaustedError
	if !errors.As(got[2].Err, &exhausted) || exhausted.Attempts != 3 {
		t.Fatalf("unexpected abort error %v", got[2].Err)
	}
	if n := h.transcribe.Load(); n != 3 {
		t.Fatalf("transcribe called %d times, want 3", n)
	}
	h.clip.mu.Lock()
	copied := len(h.clip.texts)
	h.clip.mu.Unlock()
	if copied != 0 {
		t.Fatalf("clipboard written on abort: %v", h.clip.texts)
	}
	if entries, _ := h.store.Entries(); len(entries) != 0 {
		t.Fatalf("history written on abort: %+v", entries)
	}
	if h.s.State() != StateIdle {
		t.Fatalf("state %v after abort", h.s.State())
	}
}
