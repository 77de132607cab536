package config

import (
	"bytes"
	"encoding/json"
	"sync"
)

// Store holds the live configuration shared by the recorder, the tray menu
// and the web API. Updates are validated and written back to disk.
//
// The live configuration may carry values that never came from the file,
// such as flag overrides or an API key from the environment. Only fields an
// update actually changes are merged into the file copy before saving.
type Store struct {
	mu   sync.RWMutex
	path string
	file Config
	cfg  Config
}

// NewStore wraps cfg, which is also what the file holds. An empty path keeps
// updates in memory only.
func NewStore(path string, cfg Config) *Store {
	return NewLayeredStore(path, cfg, cfg)
}

// NewLayeredStore wraps live, the effective configuration, on top of file,
// the configuration as loaded from path.
func NewLayeredStore(path string, file, live Config) *Store {
	return &Store{path: path, file: cloneConfig(file), cfg: cloneConfig(live)}
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConfig(s.cfg)
}

// Update applies fn to a copy of the configuration, validates the result and
// persists the changed fields. On any error the live configuration is left
// unchanged.
func (s *Store) Update(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cloneConfig(s.cfg)
	fn(&next)
	if err := Validate(&next); err != nil {
		return s.cfg, err
	}
	file, err := mergeChanged(s.file, s.cfg, next)
	if err != nil {
		return s.cfg, err
	}
	if s.path != "" {
		if err := Save(s.path, file); err != nil {
			return s.cfg, err
		}
	}
	s.file = file
	s.cfg = next
	return cloneConfig(next), nil
}

// Replace validates cfg and swaps it in wholesale.
func (s *Store) Replace(cfg Config) (Config, error) {
	return s.Update(func(c *Config) { *c = cloneConfig(cfg) })
}

func cloneConfig(cfg Config) Config {
	cfg.Profiles = append([]Profile(nil), cfg.Profiles...)
	for i := range cfg.Profiles {
		cfg.Profiles[i].Hotkey = append([]string(nil), cfg.Profiles[i].Hotkey...)
	}
	return cfg
}

// mergeChanged copies into file every JSON field that differs between prev
// and next.
func mergeChanged(file, prev, next Config) (Config, error) {
	f, err := fields(file)
	if err != nil {
		return file, err
	}
	p, err := fields(prev)
	if err != nil {
		return file, err
	}
	n, err := fields(next)
	if err != nil {
		return file, err
	}
	for k, v := range n {
		if !bytes.Equal(v, p[k]) {
			f[k] = v
		}
	}
	b, err := json.Marshal(f)
	if err != nil {
		return file, err
	}
	var out Config
	if err := json.Unmarshal(b, &out); err != nil {
		return file, err
	}
	return out, nil
}

func fields(cfg Config) (map[string]json.RawMessage, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
