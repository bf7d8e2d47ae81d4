package tui

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/dosekeep/internal/appstate"
	"github.com/julianstephens/dosekeep/internal/models"
)

type SessionState int

const (
	StateDashboard SessionState = iota
	StateRating
)

// Store is the part of the app state store the dashboard reads and writes.
type Store interface {
	View() appstate.View
	CheckIn(scores *models.Scores)
}

type RatingFormModel struct {
	Energy int
	Sleep  int
	Mood   int
}

type Model struct {
	store    Store
	view     appstate.View
	state    SessionState
	keys     KeyMap
	help     help.Model
	form     *huh.Form
	rating   *RatingFormModel
	message  string
	quitting bool
	width    int
	height   int
}

func NewModel(store Store) Model {
	return Model{
		store: store,
		view:  store.View(),
		state: StateDashboard,
		keys:  DefaultKeyMap(),
		help:  help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

// refresh re-reads the store. Every mutation is followed by one.
func (m *Model) refresh() {
	m.view = m.store.View()
}
