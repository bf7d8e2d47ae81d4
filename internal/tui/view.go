package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/dosekeep/internal/catalog"
	"github.com/julianstephens/dosekeep/internal/constants"
)

const weekDays = 7

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.state {
	case StateRating:
		content = lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("How was today?"),
			"",
			m.form.View(),
			labelStyle.Render("esc to cancel"),
		)
	default:
		content = m.viewDashboard()
	}

	return docStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		content,
		"",
		m.help.View(m.keys),
	))
}

func (m Model) viewDashboard() string {
	v := m.view
	s := v.State

	greeting := "dosekeep"
	if s.UserName != "" {
		greeting = "Hi, " + s.UserName
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render(greeting),
		"  ",
		dayStyle.Render(fmt.Sprintf("Day %d", v.CurrentDay)),
	)

	status := pendingStyle.Render("○ Not checked in today")
	if v.IsCheckedInToday {
		status = doneStyle.Render("✓ Checked in today")
	}

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		card("Streak", fmt.Sprintf("%d", s.CurrentStreak)),
		card("Longest", fmt.Sprintf("%d", s.LongestStreak)),
		card("Days taken", fmt.Sprintf("%d", s.TotalDaysTaken)),
	)

	lines := []string{header, "", status, "", cards, "", m.viewWeek()}
	if sc, ok := s.ScoresFor(v.Today); ok {
		lines = append(lines, "", labelStyle.Render(fmt.Sprintf("Today: energy %d · sleep %d · mood %d", sc.Energy, sc.Sleep, sc.Mood)))
	}
	if products := m.productLine(); products != "" {
		lines = append(lines, "", labelStyle.Render("Stack: ")+products)
	}
	if m.message != "" {
		lines = append(lines, "", messageStyle.Render(m.message))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func card(label, value string) string {
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render(value),
		labelStyle.Render(label),
	))
}

// viewWeek renders the last seven calendar days ending today.
func (m Model) viewWeek() string {
	today, err := time.Parse(constants.DateFormat, m.view.Today)
	if err != nil {
		return ""
	}
	taken := make(map[string]bool, len(m.view.State.CheckInHistory))
	for _, d := range m.view.State.CheckInHistory {
		taken[d] = true
	}

	var cells []string
	for i := weekDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		mark := labelStyle.Render("·")
		if taken[day.Format(constants.DateFormat)] {
			mark = doneStyle.Render("●")
		}
		cells = append(cells, fmt.Sprintf("%s %s", day.Format("Mon")[:2], mark))
	}
	return strings.Join(cells, "  ")
}

func (m Model) productLine() string {
	s := m.view.State
	var names []string
	for _, id := range s.Products {
		names = append(names, catalog.Label(catalog.Products, id))
	}
	for _, p := range s.CustomProducts {
		names = append(names, lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color)).Render(p.Name))
	}
	return strings.Join(names, ", ")
}
