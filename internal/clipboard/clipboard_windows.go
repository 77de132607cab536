//go:build windows

package clipboard

import (
	"github.com/micmonay/keybd_event"
)

// Keyboard injects key presses into the focused window.
type Keyboard struct{}

// Paste sends Ctrl+V.
func (Keyboard) Paste() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	kb.HasCTRL(true)
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}
