package hotkey

import (
	"log/slog"
	"slices"
	"sync"

	"dictate/internal/config"
	"dictate/internal/keys"
)

// Live rebuilds its Registry whenever the loaded profiles change, so hotkey
// edits apply to the next recording without a restart.
type Live struct {
	load func() []config.Profile
	log  *slog.Logger

	mu       sync.Mutex
	profiles []config.Profile
	reg      *Registry
}

// NewLive builds the initial Registry from load. An invalid initial profile
// list is an error; later invalid edits are logged and the previous
// Registry stays in force.
func NewLive(load func() []config.Profile, log *slog.Logger) (*Live, error) {
	if log == nil {
		log = slog.Default()
	}
	profiles := load()
	reg, err := NewRegistry(profiles)
	if err != nil {
		return nil, err
	}
	return &Live{load: load, log: log, profiles: cloneProfiles(profiles), reg: reg}, nil
}

// Current returns the Registry for the profiles load returns now.
func (l *Live) Current() *Registry {
	profiles := l.load()
	l.mu.Lock()
	defer l.mu.Unlock()
	if equalProfiles(profiles, l.profiles) {
		return l.reg
	}
	reg, err := NewRegistry(profiles)
	if err != nil {
		l.log.Warn("profiles changed but are invalid; keeping previous hotkeys", "err", err)
		return l.reg
	}
	l.profiles = cloneProfiles(profiles)
	l.reg = reg
	for _, p := range reg.Profiles() {
		l.log.Info("hotkey reloaded", "profile", p.DisplayName(), "hotkey", p.Chord())
	}
	return reg
}

// Match matches held against the current profiles.
func (l *Live) Match(held keys.Set) (Profile, bool) {
	return l.Current().Match(held)
}

func cloneProfiles(ps []config.Profile) []config.Profile {
	out := make([]config.Profile, len(ps))
	for i, p := range ps {
		p.Hotkey = slices.Clone(p.Hotkey)
		out[i] = p
	}
	return out
}

func equalProfiles(a, b []config.Profile) bool {
	return slices.EqualFunc(a, b, func(x, y config.Profile) bool {
		return x.Name == y.Name && x.Prompt == y.Prompt && slices.Equal(x.Hotkey, y.Hotkey)
	})
}
