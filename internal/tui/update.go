package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/models"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if wm, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = wm.Width
		m.height = wm.Height
		m.help.Width = wm.Width
	}

	if m.state == StateRating {
		return m.updateRating(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Refresh):
			m.refresh()
			m.message = ""
		case key.Matches(msg, m.keys.CheckIn):
			m.checkIn(nil)
		case key.Matches(msg, m.keys.Rate):
			m.refresh()
			if m.view.IsCheckedInToday {
				m.message = "Already checked in today."
				return m, nil
			}
			mid := (constants.MinScore + constants.MaxScore) / 2
			m.rating = &RatingFormModel{Energy: mid, Sleep: mid, Mood: mid}
			m.form = NewRatingForm(m.rating)
			m.state = StateRating
			return m, m.form.Init()
		}
	}
	return m, nil
}

func (m Model) updateRating(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		m.state = StateDashboard
		m.message = "Rating cancelled."
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.state = StateDashboard
		m.checkIn(&models.Scores{Energy: m.rating.Energy, Sleep: m.rating.Sleep, Mood: m.rating.Mood})
		return m, nil
	case huh.StateAborted:
		m.state = StateDashboard
		m.message = "Rating cancelled."
		return m, nil
	}
	return m, cmd
}

func (m *Model) checkIn(scores *models.Scores) {
	m.refresh()
	if m.view.IsCheckedInToday {
		m.message = "Already checked in today."
		return
	}
	m.store.CheckIn(scores)
	m.refresh()
	m.message = fmt.Sprintf("Checked in. Streak: %d day(s).", m.view.State.CurrentStreak)
}
