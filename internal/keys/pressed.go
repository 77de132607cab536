package keys

import "sort"

// Set is a set of canonical key names.
type Set map[string]struct{}

// NewSet builds a Set from canonical names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Contains reports whether every key of sub is in s.
func (s Set) Contains(sub Set) bool {
	for n := range sub {
		if !s.Has(n) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// PressedSet tracks which canonical keys are currently held. It is owned by a
// single goroutine and is not safe for concurrent use.
type PressedSet struct {
	keys Set
}

// NewPressedSet returns an empty PressedSet.
func NewPressedSet() *PressedSet {
	return &PressedSet{keys: make(Set)}
}

// Press records key k as held and returns its canonical name. AltGr also
// marks ctrl_l and alt_l, matching how the OS reports it.
func (p *PressedSet) Press(k RawKey) string {
	name := Normalize(k)
	p.keys[name] = struct{}{}
	if name == AltGr {
		p.keys[CtrlL] = struct{}{}
		p.keys[AltL] = struct{}{}
	}
	return name
}

// Release removes k and returns the names that were removed.
func (p *PressedSet) Release(k RawKey) []string {
	name := Normalize(k)
	var removed []string
	drop := func(n string) {
		if p.keys.Has(n) {
			delete(p.keys, n)
			removed = append(removed, n)
		}
	}
	drop(name)
	if name == AltGr {
		drop(CtrlL)
		drop(AltL)
	}
	return removed
}

// Has reports whether name is held.
func (p *PressedSet) Has(name string) bool { return p.keys.Has(name) }

// Len is the number of held keys.
func (p *PressedSet) Len() int { return len(p.keys) }

// Snapshot returns a copy of the held keys.
func (p *PressedSet) Snapshot() Set {
	out := make(Set, len(p.keys))
	for n := range p.keys {
		out[n] = struct{}{}
	}
	return out
}

// Reset forgets every held key.
func (p *PressedSet) Reset() {
	p.keys = make(Set)
}
