package indicator

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	recordingStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	processingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F"))
	doneStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F"))
	errorStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#D70000")).Padding(0, 1)
)

// Console draws the indicator as a single rewritten terminal line.
type Console struct {
	W io.Writer
}

// Render implements Renderer.
func (c Console) Render(u Update) {
	fmt.Fprint(c.W, "\r\033[K")
	if !u.Visible() {
		return
	}
	fmt.Fprint(c.W, Line(u))
}

// Line formats u without terminal control codes.
func Line(u Update) string {
	switch u.State {
	case StateRecording:
		dot := "●"
		if u.Pulse%2 == 1 {
			dot = "○"
		}
		return recordingStyle.Render(dot + " " + u.Text)
	case StateProcessing:
		return processingStyle.Render(u.Text + strings.Repeat(".", u.Pulse%3))
	case StateDone:
		return doneStyle.Render("✓ " + u.Text)
	case StateError:
		return errorStyle.Render(u.Text)
	}
	return ""
}
