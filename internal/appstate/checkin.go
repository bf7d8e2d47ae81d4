package appstate

import (
	"time"

	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/logger"
	"github.com/julianstephens/dosekeep/internal/metrics"
	"github.com/julianstephens/dosekeep/internal/models"
)

// CheckIn records today's dose. A second call on the same calendar day is a
// no-op and persists nothing. scores may be nil; a check-in without scores
// adds no dailyScores entry.
func (s *Store) CheckIn(scores *models.Scores) {
	today := s.today()

	s.mu.Lock()
	next, recorded := applyCheckIn(s.state, today, scores)
	if !recorded {
		s.mu.Unlock()
		s.rec.IncCheckIn(metrics.CheckInDuplicate)
		logger.Debug("Already checked in today", "date", today)
		return
	}
	s.state = next
	s.persistLocked()
	s.mu.Unlock()

	s.rec.IncCheckIn(metrics.CheckInRecorded)
	s.rec.SetCurrentStreak(next.CurrentStreak)
	logger.Info("Checked in", "date", today, "streak", next.CurrentStreak, "total", next.TotalDaysTaken)
}

// applyCheckIn returns prev with a check-in on today applied, or prev and
// false when today is already recorded.
func applyCheckIn(prev models.AppState, today string, scores *models.Scores) (models.AppState, bool) {
	last := prev.LastCheckedInDay()
	if last == today {
		return prev, false
	}

	streak := 1
	if last != "" && last == previousDay(today) {
		streak = prev.CurrentStreak + 1
	}

	next := prev.Clone()
	next.LastCheckedIn = &today
	next.CheckInHistory = append(next.CheckInHistory, today)
	next.CurrentStreak = streak
	next.LongestStreak = max(prev.LongestStreak, streak)
	next.TotalDaysTaken = prev.TotalDaysTaken + 1
	if scores != nil {
		next.DailyScores = append(next.DailyScores, models.DailyScore{Date: today, Scores: *scores})
	}
	return next, true
}

// today is the store clock's calendar date in the store's location.
func (s *Store) today() string {
	return s.now().In(s.loc).Format(constants.DateFormat)
}

// previousDay returns the calendar day before day. Noon is used so a DST
// shift cannot move the result across midnight.
func previousDay(day string) string {
	t, err := time.Parse(constants.DateFormat, day)
	if err != nil {
		return ""
	}
	y, m, d := t.Date()
	return time.Date(y, m, d-1, 12, 0, 0, 0, time.UTC).Format(constants.DateFormat)
}
