package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("205")
	muted  = lipgloss.Color("240")
	good   = lipgloss.Color("42")

	docStyle = lipgloss.NewStyle().Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	dayStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(accent).
			Padding(0, 1).
			Bold(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 2).
			MarginRight(1)

	labelStyle = lipgloss.NewStyle().Foreground(muted)

	doneStyle = lipgloss.NewStyle().Foreground(good).Bold(true)

	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	messageStyle = lipgloss.NewStyle().Foreground(muted).Italic(true)
)
