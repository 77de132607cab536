// Package hotkey holds the configured hotkey profiles and the OS keyboard
// source that feeds them.
package hotkey

import (
	"errors"
	"fmt"
	"strings"

	"dictate/internal/config"
	"dictate/internal/keys"
)

// ErrUnsupported is returned by Listen on platforms without a keyboard hook.
var ErrUnsupported = errors.New("global keyboard hook not supported on this platform")

// Profile is a configured chord with its canonical key set. Immutable after
// NewRegistry.
type Profile struct {
	Name   string
	Hotkey []string
	Keys   keys.Set
	Prompt string
}

// DisplayName is the label shown while recording.
func (p Profile) DisplayName() string {
	if p.Name == "" {
		return "Default"
	}
	return p.Name
}

// Binds reports whether name is part of the chord.
func (p Profile) Binds(name string) bool { return p.Keys.Has(name) }

// Chord renders the hotkey as "ctrl_l+grave".
func (p Profile) Chord() string {
	names := make([]string, 0, len(p.Hotkey))
	for _, tok := range p.Hotkey {
		names = append(names, keys.NormalizeToken(tok))
	}
	return strings.Join(names, "+")
}

// Registry matches held keys against profiles in configuration order.
type Registry struct {
	profiles []Profile
}

// NewRegistry canonicalizes each profile's hotkey tokens.
func NewRegistry(profiles []config.Profile) (*Registry, error) {
	r := &Registry{profiles: make([]Profile, 0, len(profiles))}
	for _, p := range profiles {
		set := make(keys.Set, len(p.Hotkey))
		for _, tok := range p.Hotkey {
			name := keys.NormalizeToken(tok)
			if name == "" {
				return nil, fmt.Errorf("profile %q: empty hotkey token", p.Name)
			}
			set[name] = struct{}{}
		}
		if len(set) == 0 {
			return nil, fmt.Errorf("profile %q: empty hotkey", p.Name)
		}
		r.profiles = append(r.profiles, Profile{
			Name:   p.Name,
			Hotkey: append([]string(nil), p.Hotkey...),
			Keys:   set,
			Prompt: p.Prompt,
		})
	}
	return r, nil
}

// Match returns the first profile whose chord is fully held.
func (r *Registry) Match(held keys.Set) (Profile, bool) {
	for _, p := range r.profiles {
		if held.Contains(p.Keys) {
			return p, true
		}
	}
	return Profile{}, false
}

// Profiles returns the profiles in configuration order.
func (r *Registry) Profiles() []Profile {
	return append([]Profile(nil), r.profiles...)
}

// Lookup finds a profile by name.
func (r *Registry) Lookup(name string) (Profile, bool) {
	for _, p := range r.profiles {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Profile{}, false
}

// SafeExit is the fixed chord that terminates the process.
var SafeExit = keys.NewSet(keys.CtrlL, keys.AltL, "0")

// IsSafeExit reports whether the safe-exit chord is held.
func IsSafeExit(held keys.Set) bool {
	return held.Contains(SafeExit)
}

// SafeExitChord is the printable form of SafeExit.
const SafeExitChord = "ctrl_l+alt_l+0"
