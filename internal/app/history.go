package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"dictate/internal/history"
)

// DefaultHistoryCount is how many entries PrintHistory shows by default.
const DefaultHistoryCount = 10

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FFFF"))
	profileStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
)

// PrintHistory writes the last n entries, newest first.
func PrintHistory(w io.Writer, store *history.Store, n int) error {
	if n <= 0 {
		n = DefaultHistoryCount
	}
	entries, err := store.Recent(n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No history yet."))
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(w, headerStyle.Render(e.Timestamp)+"  "+profileStyle.Render(e.ProfileName))
		fmt.Fprintln(w, "  "+e.RefinedText)
		if e.RawText != e.RefinedText {
			fmt.Fprintln(w, dimStyle.Render("  raw: "+e.RawText))
		}
		models := strings.TrimSpace(e.STTModel + " " + e.RefinementModel)
		if models != "" {
			fmt.Fprintln(w, dimStyle.Render("  "+models))
		}
		fmt.Fprintln(w)
	}
	return nil
}
