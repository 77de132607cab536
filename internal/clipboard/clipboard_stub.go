//go:build !windows

package clipboard

import "fmt"

// Keyboard injects key presses into the focused window.
type Keyboard struct{}

// Paste is not supported on non-Windows builds.
func (Keyboard) Paste() error {
	return fmt.Errorf("simulated paste not supported on this platform")
}
