package tui

import "github.com/charmbracelet/lipgloss"

// Styles for the watch view
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")). // Bright blue
			Padding(0, 1)

	passedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Bright green

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	skippedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")) // Gray

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // Dark gray

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700")) // Gold

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)
