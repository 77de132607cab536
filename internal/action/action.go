// Package action delivers final text to the focused application and records
// it in the history log.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dictate/internal/config"
	"dictate/internal/history"
)

// Mode is the configured output action.
type Mode string

const (
	ModeType        Mode = config.ModeType
	ModeCopy        Mode = config.ModeCopy
	ModeTypeAndCopy Mode = config.ModeTypeAndCopy
)

// Pastes reports whether the mode simulates a paste.
func (m Mode) Pastes() bool { return m == ModeType || m == ModeTypeAndCopy }

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeType, ModeCopy, ModeTypeAndCopy:
		return true
	}
	return false
}

// DefaultSettle is how long modifier keys get to release before pasting.
const DefaultSettle = 300 * time.Millisecond

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	WriteText(text string) error
}

// Paster fires the paste shortcut.
type Paster interface {
	Paste() error
}

// HistoryWriter appends one log entry.
type HistoryWriter interface {
	Append(e history.Entry) error
}

// Delivery is one piece of text to emit.
type Delivery struct {
	Text            string
	Raw             string
	Profile         string
	STTModel        string
	RefinementModel string
	Mode            Mode
	LogHistory      bool
}

// Report describes what Dispatch did.
type Report struct {
	Copied bool
	Pasted bool
	Logged bool
	// LogErr is set when the action succeeded but the history append failed.
	LogErr error
}

// Dispatcher performs the output action.
type Dispatcher struct {
	Clipboard Clipboard
	Paster    Paster
	History   HistoryWriter
	Settle    time.Duration
	Log       *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher returns a Dispatcher using the real clock.
func NewDispatcher(cb Clipboard, p Paster, h HistoryWriter, log *slog.Logger) *Dispatcher {
	return &Dispatcher{Clipboard: cb, Paster: p, History: h, Settle: DefaultSettle, Log: log}
}

// Dispatch copies d.Text to the clipboard, waits for the settle delay and
// pastes when the mode asks for it, then appends a history entry. A history
// failure is reported in Report.LogErr and never undoes the delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, del Delivery) (Report, error) {
	var rep Report
	if del.Text == "" {
		return rep, nil
	}
	if !del.Mode.Valid() {
		return rep, fmt.Errorf("unknown action mode %q", del.Mode)
	}

	if err := d.Clipboard.WriteText(del.Text); err != nil {
		return rep, fmt.Errorf("clipboard write: %w", err)
	}
	rep.Copied = true

	if del.Mode.Pastes() {
		if err := d.wait(ctx, d.Settle); err != nil {
			return rep, err
		}
		if err := d.Paster.Paste(); err != nil {
			return rep, fmt.Errorf("paste: %w", err)
		}
		rep.Pasted = true
	}

	if del.LogHistory && d.History != nil {
		entry := history.NewEntry(d.clock(), del.Profile, del.Raw, del.Text, del.STTModel, del.RefinementModel)
		if err := d.History.Append(entry); err != nil {
			rep.LogErr = err
			d.logger().Error("history append failed", "err", err)
		} else {
			rep.Logged = true
		}
	}
	return rep, nil
}

func (d *Dispatcher) wait(ctx context.Context, dur time.Duration) error {
	if d.sleep != nil {
		return d.sleep(ctx, dur)
	}
	if dur <= 0 {
		return nil
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Dispatcher) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}
