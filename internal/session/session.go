// Package session runs the push-to-talk state machine. One goroutine owns the
// held keys and drives Idle -> Recording -> Processing; a worker per
// utterance runs the remote calls and the output action and reports back by
// message.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"dictate/internal/action"
	"dictate/internal/config"
	"dictate/internal/hotkey"
	"dictate/internal/keys"
	"dictate/internal/observe"
	"dictate/internal/pipeline"
	"dictate/internal/record"
)

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
	StateAction
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateAction:
		return "action"
	}
	return "idle"
}

// DefaultSettleDelay is how long the done state lingers before Idle.
const DefaultSettleDelay = time.Second

// Recorder starts and stops audio capture.
type Recorder interface {
	Start() error
	Stop() (record.Buffer, error)
}

// Encoder turns captured audio into an uploadable clip.
type Encoder interface {
	Encode(ctx context.Context, buf record.Buffer) (record.Clip, error)
}

// Processor transcribes and refines a clip.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request, s pipeline.Settings) (pipeline.Result, error)
}

// Dispatcher emits the final text.
type Dispatcher interface {
	Dispatch(ctx context.Context, d action.Delivery) (action.Report, error)
}

// Matcher finds the profile whose chord is held. Both *hotkey.Registry and
// *hotkey.Live satisfy it.
type Matcher interface {
	Match(held keys.Set) (hotkey.Profile, bool)
}

// Settings are captured when a recording stops and apply to that utterance.
type Settings struct {
	Pipeline   pipeline.Settings
	Mode       action.Mode
	LogHistory bool
	KeepCache  bool
	CacheDir   string
}

// SettingsFrom extracts per-utterance settings from cfg.
func SettingsFrom(cfg config.Config) Settings {
	return Settings{
		Pipeline:   pipeline.SettingsFrom(cfg),
		Mode:       action.Mode(cfg.ActionMode),
		LogHistory: cfg.LogHistory,
		KeepCache:  cfg.KeepCache,
		CacheDir:   cfg.CacheDir,
	}
}

// Config wires a Session. SettleDelay is waited after the action before
// returning to Idle. OnExit runs before Exit when the safe-exit chord is
// pressed.
type Config struct {
	Registry    Matcher
	Recorder    Recorder
	Encoder     Encoder
	Processor   Processor
	Dispatcher  Dispatcher
	Settings    func() Settings
	Notifier    Notifier
	SettleDelay time.Duration
	OnExit      func()
	Exit        func(code int)
	Metrics     *observe.Metrics
	Log         *slog.Logger
}

// update is sent from a worker to the event loop.
type update struct {
	state  State
	events []Event
}

// Session is the recording state machine.
type Session struct {
	cfg Config
	log *slog.Logger

	// Owned by the Run goroutine.
	pressed   *keys.PressedSet
	active    *hotkey.Profile
	startedAt time.Time

	state   atomic.Int32
	updates chan update
	workers sync.WaitGroup
}

// New validates cfg and returns an idle Session.
func New(cfg Config) (*Session, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("session: registry is required")
	case cfg.Recorder == nil:
		return nil, errors.New("session: recorder is required")
	case cfg.Encoder == nil:
		return nil, errors.New("session: encoder is required")
	case cfg.Processor == nil:
		return nil, errors.New("session: processor is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("session: dispatcher is required")
	case cfg.Settings == nil:
		return nil, errors.New("session: settings func is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NotifierFunc(func(Event) {})
	}
	if cfg.Exit == nil {
		cfg.Exit = os.Exit
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:     cfg,
		log:     log.With("component", "session"),
		pressed: keys.NewPressedSet(),
		updates: make(chan update, 8),
	}, nil
}

// State is safe to call from any goroutine.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.log.Debug("state", "from", prev, "to", st)
	}
}

// Wait blocks until every started worker has returned.
func (s *Session) Wait() { s.workers.Wait() }

// Run consumes key events until ctx is done, events is closed, or the
// safe-exit chord is pressed.
func (s *Session) Run(ctx context.Context, events <-chan keys.Event) error {
	wctx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for {
		select {
		case <-ctx.Done():
			s.abandon()
			return ctx.Err()
		case u := <-s.updates:
			s.apply(u)
		case ev, ok := <-events:
			if !ok {
				s.abandon()
				return nil
			}
			if ev.Down {
				if s.press(wctx, ev.Key) {
					cancelWorkers()
					s.safeExit()
					return nil
				}
			} else {
				s.release(wctx, ev.Key)
			}
		}
	}
}

func (s *Session) apply(u update) {
	s.setState(u.state)
	if u.state == StateIdle {
		s.active = nil
	}
	for _, ev := range u.events {
		s.notify(ev)
	}
}

func (s *Session) notify(ev Event) {
	s.log.Debug("event", "kind", ev.Kind, "profile", ev.Profile)
	s.cfg.Notifier.Notify(ev)
}

// press reports whether the safe-exit chord is now held.
func (s *Session) press(ctx context.Context, k keys.RawKey) bool {
	name := s.pressed.Press(k)
	held := s.pressed.Snapshot()
	s.log.Debug("key down", "key", name, "held", held.Sorted())
	if hotkey.IsSafeExit(held) {
		return true
	}
	if s.State() != StateIdle {
		return false
	}
	p, ok := s.cfg.Registry.Match(held)
	if !ok {
		return false
	}
	s.startRecording(ctx, p)
	return false
}

func (s *Session) startRecording(ctx context.Context, p hotkey.Profile) {
	if err := s.cfg.Recorder.Start(); err != nil {
		s.log.Error("recording failed to start", "profile", p.DisplayName(), "err", err)
		s.cfg.Metrics.RecordUtterance(ctx, observe.OutcomeDevice)
		s.setState(StateIdle)
		s.notify(Event{Kind: EventDeviceError, Profile: p.DisplayName(), Err: err})
		return
	}
	s.active = &p
	s.startedAt = time.Now()
	s.setState(StateRecording)
	s.log.Info("recording", "profile", p.DisplayName(), "hotkey", p.Chord())
	s.notify(Event{Kind: EventRecordingStarted, Profile: p.DisplayName()})
}

func (s *Session) release(ctx context.Context, k keys.RawKey) {
	removed := s.pressed.Release(k)
	if s.State() != StateRecording || s.active == nil {
		return
	}
	for _, name := range removed {
		if s.active.Binds(name) {
			s.stopRecording(ctx)
			return
		}
	}
}

func (s *Session) stopRecording(ctx context.Context) {
	p := *s.active
	buf, err := s.cfg.Recorder.Stop()
	if err != nil {
		s.log.Warn("stop recording", "err", err)
	}
	s.cfg.Metrics.RecordRecording(ctx, time.Since(s.startedAt))

	if buf.Empty() {
		s.log.Info("no audio captured", "profile", p.DisplayName())
		s.cfg.Metrics.RecordUtterance(ctx, observe.OutcomeNoAudio)
		s.active = nil
		s.setState(StateIdle)
		s.notify(Event{Kind: EventNoAudio, Profile: p.DisplayName()})
		return
	}

	s.setState(StateProcessing)
	s.notify(Event{Kind: EventProcessing, Profile: p.DisplayName()})

	settings := s.cfg.Settings()
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		s.work(ctx, p, buf, settings)
	}()
}

// work runs off the event loop. Every path ends with an Idle update.
func (s *Session) work(ctx context.Context, p hotkey.Profile, buf record.Buffer, st Settings) {
	name := p.DisplayName()
	log := s.log.With("profile", name)
	defer func() {
		if s.settle(ctx) {
			s.send(ctx, update{state: StateIdle, events: []Event{{Kind: EventIdle, Profile: name}}})
		}
	}()

	outcome, events := s.deliver(ctx, p, buf, st, log)
	s.cfg.Metrics.RecordUtterance(ctx, outcome)
	s.send(ctx, update{state: StateAction, events: events})
}

func (s *Session) deliver(ctx context.Context, p hotkey.Profile, buf record.Buffer, st Settings, log *slog.Logger) (string, []Event) {
	name := p.DisplayName()
	aborted := func(err error) (string, []Event) {
		log.Error("utterance aborted", "err", err)
		return observe.OutcomeFailed, []Event{{Kind: EventAborted, Profile: name, Err: err}}
	}

	clip, err := s.cfg.Encoder.Encode(ctx, buf)
	if err != nil {
		return aborted(fmt.Errorf("encode: %w", err))
	}
	defer func() {
		if st.KeepCache && st.CacheDir != "" {
			if err := clip.Keep(st.CacheDir, time.Now()); err != nil {
				log.Warn("keep cache", "err", err)
			}
			return
		}
		clip.Remove()
	}()

	res, err := s.cfg.Processor.Process(ctx, pipeline.Request{Path: clip.Path, Prompt: p.Prompt, Profile: name}, st.Pipeline)
	if errors.Is(err, pipeline.ErrEmptyTranscript) {
		log.Info("empty transcript")
		return observe.OutcomeEmpty, []Event{{Kind: EventEmptyTranscript, Profile: name}}
	}
	if err != nil {
		return aborted(err)
	}

	s.send(ctx, update{state: StateAction})
	rep, err := s.cfg.Dispatcher.Dispatch(ctx, action.Delivery{
		Text:            res.Refined,
		Raw:             res.Raw,
		Profile:         name,
		STTModel:        res.STTModel,
		RefinementModel: res.RefinementModel,
		Mode:            st.Mode,
		LogHistory:      st.LogHistory,
	})
	if err != nil {
		return aborted(fmt.Errorf("action: %w", err))
	}
	log.Info("delivered", "mode", st.Mode, "chars", len(res.Refined), "logged", rep.Logged)

	events := []Event{{Kind: EventDone, Profile: name, Text: res.Refined}}
	if rep.LogErr != nil {
		s.cfg.Metrics.RecordHistoryError(ctx)
		events = append(events, Event{Kind: EventLogFailed, Profile: name, Err: rep.LogErr})
	}
	return observe.OutcomeDelivered, events
}

// settle waits SettleDelay and reports whether the session is still running.
func (s *Session) settle(ctx context.Context) bool {
	if s.cfg.SettleDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// send delivers u unless the session is shutting down.
func (s *Session) send(ctx context.Context, u update) {
	select {
	case s.updates <- u:
	case <-ctx.Done():
	}
}

// abandon stops an in-flight capture on shutdown. Workers are not awaited.
func (s *Session) abandon() {
	if s.State() == StateRecording {
		if _, err := s.cfg.Recorder.Stop(); err != nil {
			s.log.Warn("stop recording", "err", err)
		}
	}
	s.active = nil
	s.setState(StateIdle)
}

func (s *Session) safeExit() {
	s.log.Warn("safe exit chord pressed", "chord", hotkey.SafeExitChord)
	s.abandon()
	s.notify(Event{Kind: EventSafeExit})
	if s.cfg.OnExit != nil {
		s.cfg.OnExit()
	}
	s.cfg.Exit(0)
}
