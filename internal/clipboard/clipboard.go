// Package clipboard writes text to the system clipboard and simulates the
// paste shortcut.
package clipboard

import "github.com/atotto/clipboard"

// System is the OS clipboard.
type System struct{}

// WriteText replaces the clipboard contents.
func (System) WriteText(text string) error {
	return clipboard.WriteAll(text)
}

// ReadText returns the clipboard contents.
func (System) ReadText() (string, error) {
	return clipboard.ReadAll()
}
