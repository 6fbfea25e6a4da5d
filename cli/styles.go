// ABOUTME: Terminal styles for CLI output
// ABOUTME: Colors degrade to plain text when stdout is not a terminal
package cli

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// statusStyle picks a color for an orchestrator status.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "applied", "created", "searched":
		return okStyle
	case "failed", "not_found":
		return errorStyle
	case "dry_run", "no_changes":
		return dimStyle
	default:
		return warnStyle
	}
}
