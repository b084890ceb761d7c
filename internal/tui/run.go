package tui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Run starts the watch dashboard against the rigwatch HTTP API at
// baseURL and blocks until the user quits or ctx is cancelled.
//
// Grounded on the pack's termenv usage for color-capability detection
// (steveyegge-beads/steveyegge-gastown both depend on
// github.com/muesli/termenv alongside lipgloss): a color profile below
// ANSI256 forces lipgloss into its plain-ANSI renderer so the dashboard
// degrades instead of emitting escape codes a dumb terminal can't
// parse.
func Run(ctx context.Context, baseURL string) error {
	if termenv.EnvColorProfile() < termenv.ANSI256 {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	m := NewModel(ctx, baseURL)
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())

	_, err := program.Run()
	return err
}

// IsInteractive reports whether stdout looks like a terminal, used by
// cmd/rigwatch to decide whether `watch` should run the full TUI or
// fall back to a plain scrolling log (e.g. when piped).
func IsInteractive() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
