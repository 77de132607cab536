// Package tray puts a menu in the system notification area with live
// toggles for refinement and sounds.
package tray

import (
	"log/slog"

	"github.com/getlantern/systray"

	"dictate/internal/config"
	"dictate/internal/indicator"
)

const title = "Dictate"

// Toggle names a boolean setting the menu can flip.
type Toggle int

const (
	ToggleRefinement Toggle = iota
	ToggleSounds
)

func (t Toggle) String() string {
	if t == ToggleSounds {
		return "sounds"
	}
	return "refinement"
}

// Apply flips t in cfg and returns the new value.
func (t Toggle) Apply(cfg *config.Config) bool {
	switch t {
	case ToggleRefinement:
		cfg.RefinementEnabled = !cfg.RefinementEnabled
		return cfg.RefinementEnabled
	case ToggleSounds:
		cfg.PlaySounds = !cfg.PlaySounds
		return cfg.PlaySounds
	}
	return false
}

// Tray owns the systray menu.
type Tray struct {
	store *config.Store
	quit  func()
	log   *slog.Logger
}

// New returns a Tray persisting toggles through store. quit runs when Exit
// is chosen.
func New(store *config.Store, quit func(), log *slog.Logger) *Tray {
	if log == nil {
		log = slog.Default()
	}
	return &Tray{store: store, quit: quit, log: log.With("component", "tray")}
}

// Run starts the tray on its own goroutine. Stop removes it.
func (t *Tray) Run() {
	go systray.Run(t.onReady, func() {})
}

// Stop removes the tray icon.
func (t *Tray) Stop() { systray.Quit() }

// Flip applies tg through the store and returns the saved value.
func (t *Tray) Flip(tg Toggle) (bool, error) {
	var v bool
	_, err := t.store.Update(func(c *config.Config) { v = tg.Apply(c) })
	return v, err
}

func (t *Tray) onReady() {
	cfg := t.store.Snapshot()
	systray.SetTitle(title)
	systray.SetTooltip("Push-to-talk dictation")

	mRefine := systray.AddMenuItemCheckbox("Refinement", "Rewrite transcripts with the language model", cfg.RefinementEnabled)
	mSounds := systray.AddMenuItemCheckbox("Sounds", "Play feedback tones", cfg.PlaySounds)
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Exit", "Quit dictation")

	go func() {
		for {
			select {
			case <-mRefine.ClickedCh:
				t.toggle(ToggleRefinement, mRefine)
			case <-mSounds.ClickedCh:
				t.toggle(ToggleSounds, mSounds)
			case <-mQuit.ClickedCh:
				t.log.Info("exit selected")
				if t.quit != nil {
					t.quit()
				}
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) toggle(tg Toggle, item *systray.MenuItem) {
	v, err := t.Flip(tg)
	if err != nil {
		t.log.Error("save setting", "err", err)
		return
	}
	if v {
		item.Check()
	} else {
		item.Uncheck()
	}
	t.log.Info("setting changed", "toggle", tg, "enabled", v)
}

// Renderer mirrors the indicator into the tray title and tooltip.
type Renderer struct{}

// Render implements indicator.Renderer.
func (Renderer) Render(u indicator.Update) {
	if !u.Visible() {
		systray.SetTitle(title)
		systray.SetTooltip("Push-to-talk dictation")
		return
	}
	systray.SetTitle(title + ": " + u.State.String())
	systray.SetTooltip(u.Text)
}
