package tui

import "github.com/charmbracelet/lipgloss"

// Grounded on steveyegge-gastown/internal/tui/decision/styles.go's
// palette-then-styles layout (named lipgloss.Color constants feeding
// a set of package-level lipgloss.Style vars).
var (
	colorRunning = lipgloss.Color("76")  // green
	colorIdle    = lipgloss.Color("214") // orange
	colorStopped = lipgloss.Color("242") // gray
	colorAlert   = lipgloss.Color("196") // bright red
	colorHeader  = lipgloss.Color("39")  // blue
	colorMuted   = lipgloss.Color("242")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorHeader).
			MarginBottom(1)

	rigHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorHeader)

	agentRunningStyle = lipgloss.NewStyle().Foreground(colorRunning)
	agentIdleStyle    = lipgloss.NewStyle().Foreground(colorIdle)
	agentStoppedStyle = lipgloss.NewStyle().Foreground(colorStopped)

	alertStyle = lipgloss.NewStyle().Foreground(colorAlert).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)

	helpStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

func agentStatusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return agentRunningStyle
	case "idle":
		return agentIdleStyle
	default:
		return agentStoppedStyle
	}
}
