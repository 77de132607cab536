// Package notify plays feedback tones and shows desktop notifications.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Sound is a feedback tone.
type Sound int

const (
	SoundStart Sound = iota
	SoundStop
	SoundSuccess
	SoundError
)

type tone struct {
	freq float64
	ms   int
}

var tones = map[Sound]tone{
	SoundStart:   {600, 80},
	SoundStop:    {450, 80},
	SoundSuccess: {900, 120},
	SoundError:   {200, 400},
}

// Notifier plays sounds and toasts. The enable funcs are read on every call
// so live setting changes apply immediately.
type Notifier struct {
	Title  string
	Sounds func() bool
	Toasts func() bool
	Log    *slog.Logger

	beep   func(freq float64, ms int) error
	notify func(title, message string) error
}

// New returns a Notifier backed by beeep.
func New(title string, sounds, toasts func() bool, log *slog.Logger) *Notifier {
	return &Notifier{
		Title:  title,
		Sounds: sounds,
		Toasts: toasts,
		Log:    log,
		beep:   beeep.Beep,
		notify: func(title, message string) error { return beeep.Notify(title, message, "") },
	}
}

// Play plays s without blocking the caller.
func (n *Notifier) Play(s Sound) {
	if n == nil || n.Sounds == nil || !n.Sounds() {
		return
	}
	t, ok := tones[s]
	if !ok {
		return
	}
	go func() {
		if err := n.beep(t.freq, t.ms); err != nil && n.Log != nil {
			n.Log.Debug("beep failed", "err", err)
		}
	}()
}

// Toast shows a desktop notification without blocking the caller.
func (n *Notifier) Toast(message string) {
	if n == nil || n.Toasts == nil || !n.Toasts() {
		return
	}
	go func() {
		if err := n.notify(n.Title, message); err != nil && n.Log != nil {
			n.Log.Debug("notification failed", "err", err)
		}
	}()
}
