package appstate

import "github.com/julianstephens/dosekeep/internal/models"

// View is one consistent read of the record and its derived values.
type View struct {
	State            models.AppState
	IsLoading        bool
	Today            string
	IsCheckedInToday bool
	CurrentDay       int
}

// IsCheckedInToday reports whether the last check-in was today. It can turn
// false at midnight without any mutation.
func (s *Store) IsCheckedInToday() bool {
	today := s.today()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return checkedInOn(s.state, today)
}

// CurrentDay is the ordinal of the day the user is on, counting today even
// when it has no check-in yet.
func (s *Store) CurrentDay() int {
	today := s.today()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return currentDay(s.state, today)
}

func (s *Store) View() View {
	today := s.today()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		State:            s.state.Clone(),
		IsLoading:        s.loading,
		Today:            today,
		IsCheckedInToday: checkedInOn(s.state, today),
		CurrentDay:       currentDay(s.state, today),
	}
}

func checkedInOn(state models.AppState, today string) bool {
	return state.LastCheckedInDay() == today
}

func currentDay(state models.AppState, today string) int {
	if len(state.CheckInHistory) == 0 {
		return 1
	}
	if checkedInOn(state, today) {
		return state.TotalDaysTaken
	}
	return state.TotalDaysTaken + 1
}
