package tray

import (
	"path/filepath"
	"testing"

	"dictate/internal/config"
)

func TestFlipPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := config.DefaultConfig()
	cfg.RefinementEnabled = false
	store := config.NewStore(path, cfg)
	tr := New(store, nil, nil)

	v, err := tr.Flip(ToggleRefinement)
	if err != nil {
		t.Fatalf("Flip: %v", err)
	}
	if !v || !store.Snapshot().RefinementEnabled {
		t.Fatal("refinement not enabled")
	}
	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.RefinementEnabled {
		t.Fatal("toggle not saved")
	}

	v, _ = tr.Flip(ToggleSounds)
	if v != !cfg.PlaySounds {
		t.Fatalf("sounds = %v", v)
	}
}
