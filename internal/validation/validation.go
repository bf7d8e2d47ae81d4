package validation

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/julianstephens/dosekeep/internal/constants"
	"github.com/julianstephens/dosekeep/internal/models"
)

// IssueType represents the kind of validation problem found
type IssueType string

const (
	IssueOutOfRange       IssueType = "out_of_range"
	IssueInvalidType      IssueType = "invalid_type"
	IssueInvalidDateTime  IssueType = "invalid_datetime"
	IssueInvalidEnum      IssueType = "invalid_enum"
	IssueDuplicateDate    IssueType = "duplicate_date"
	IssueUnorderedHistory IssueType = "unordered_history"
	IssueCountMismatch    IssueType = "count_mismatch"
	IssueStreakMismatch   IssueType = "streak_mismatch"
	IssueUnknownField     IssueType = "unknown_field"
)

// Issue is one problem found in a patch, score triple or stored record
type Issue struct {
	Type        IssueType
	Field       string
	Description string
}

// ValidationResult contains all detected issues
type ValidationResult struct {
	Issues []Issue
}

// HasIssues returns true if there are any issues
func (vr *ValidationResult) HasIssues() bool {
	return len(vr.Issues) > 0
}

// FormatReport returns a human-readable report of all issues
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasIssues() {
		return "No issues detected."
	}

	var b strings.Builder
	b.WriteString("Issues detected:\n")
	for _, issue := range vr.Issues {
		fmt.Fprintf(&b, "- %s\n", issue.Description)
	}
	return b.String()
}

func (vr *ValidationResult) add(t IssueType, field, format string, args ...any) {
	vr.Issues = append(vr.Issues, Issue{Type: t, Field: field, Description: fmt.Sprintf(format, args...)})
}

// Validator checks user input before it reaches the state store. The store
// itself accepts anything; these checks belong to the CLI and TUI.
type Validator struct {
	// AllowUnknown lets patches carry keys outside the known schema.
	AllowUnknown bool
}

// New creates a new Validator
func New() *Validator {
	return &Validator{}
}

var hhmm = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// IsValidTime reports whether s is a 24h "HH:MM" time.
func IsValidTime(s string) bool {
	if !hhmm.MatchString(s) {
		return false
	}
	_, err := time.Parse(constants.TimeFormat, s)
	return err == nil
}

// IsValidDate reports whether s is a "YYYY-MM-DD" calendar date.
func IsValidDate(s string) bool {
	t, err := time.Parse(constants.DateFormat, s)
	return err == nil && t.Format(constants.DateFormat) == s
}

// ValidatePatch checks the keys of a patch whose values came from JSON or
// CLI parsing.
func (v *Validator) ValidatePatch(p models.Patch) ValidationResult {
	result := ValidationResult{Issues: []Issue{}}

	for _, key := range p.Keys() {
		value := p[key]
		if !models.IsKnownField(key) {
			if !v.AllowUnknown {
				result.add(IssueUnknownField, key, "Unknown field %q (use --allow-unknown to store it anyway)", key)
			}
			continue
		}

		switch key {
		case "missedDoses":
			v.checkNumber(&result, key, value, 0, constants.MaxMissedDoses, true)
		case "missedDosesPct":
			v.checkNumber(&result, key, value, 0, constants.MaxMissedDosesPct, false)
		case "notificationMode":
			s, ok := value.(string)
			if !ok || !models.NotificationMode(s).Valid() {
				result.add(IssueInvalidEnum, key, "notificationMode must be one of specific, random, hourly (got %v)", value)
			}
		case "notificationTimes":
			times, ok := toStrings(value)
			if !ok {
				result.add(IssueInvalidType, key, "notificationTimes must be a list of HH:MM strings")
				continue
			}
			for _, tm := range times {
				if !IsValidTime(tm) {
					result.add(IssueInvalidDateTime, key, "Invalid notification time %q (want HH:MM)", tm)
				}
			}
		case "routineTime":
			s, ok := value.(string)
			if !ok || !IsValidTime(s) {
				result.add(IssueInvalidDateTime, key, "routineTime must be HH:MM (got %v)", value)
			}
		case "lastCheckedIn", "streakShieldUsedDate":
			if value == nil {
				continue
			}
			s, ok := value.(string)
			if !ok || !IsValidDate(s) {
				result.add(IssueInvalidDateTime, key, "%s must be YYYY-MM-DD or null (got %v)", key, value)
			}
		}
	}
	return result
}

func (v *Validator) checkNumber(result *ValidationResult, key string, value any, lo, hi float64, integer bool) {
	n, ok := toFloat(value)
	if !ok {
		result.add(IssueInvalidType, key, "%s must be a number (got %v)", key, value)
		return
	}
	if integer && n != math.Trunc(n) {
		result.add(IssueInvalidType, key, "%s must be a whole number (got %v)", key, value)
		return
	}
	if n < lo || n > hi {
		result.add(IssueOutOfRange, key, "%s must be between %v and %v (got %v)", key, lo, hi, value)
	}
}

// ValidateScores checks each rating is within MinScore..MaxScore.
func (v *Validator) ValidateScores(s models.Scores) ValidationResult {
	result := ValidationResult{Issues: []Issue{}}
	for name, score := range map[string]int{"energy": s.Energy, "sleep": s.Sleep, "mood": s.Mood} {
		if score < constants.MinScore || score > constants.MaxScore {
			result.add(IssueOutOfRange, name, "%s must be between %d and %d (got %d)", name, constants.MinScore, constants.MaxScore, score)
		}
	}
	sort.Slice(result.Issues, func(i, j int) bool { return result.Issues[i].Field < result.Issues[j].Field })
	return result
}

// ValidateState checks the check-in invariants of a stored record. Records
// written by other clients or edited by hand may break them.
func (v *Validator) ValidateState(s models.AppState) ValidationResult {
	result := ValidationResult{Issues: []Issue{}}

	seen := make(map[string]bool, len(s.CheckInHistory))
	for i, day := range s.CheckInHistory {
		if !IsValidDate(day) {
			result.add(IssueInvalidDateTime, "checkInHistory", "History entry %q is not a YYYY-MM-DD date", day)
			continue
		}
		if seen[day] {
			result.add(IssueDuplicateDate, "checkInHistory", "History contains %s more than once", day)
		}
		seen[day] = true
		if i > 0 && day < s.CheckInHistory[i-1] {
			result.add(IssueUnorderedHistory, "checkInHistory", "History entry %s comes after %s", day, s.CheckInHistory[i-1])
		}
	}

	if s.TotalDaysTaken != len(s.CheckInHistory) {
		result.add(IssueCountMismatch, "totalDaysTaken", "totalDaysTaken is %d but history has %d entries", s.TotalDaysTaken, len(s.CheckInHistory))
	}
	if s.LongestStreak < s.CurrentStreak {
		result.add(IssueStreakMismatch, "longestStreak", "longestStreak %d is below currentStreak %d", s.LongestStreak, s.CurrentStreak)
	}
	if s.CurrentStreak < 0 || s.LongestStreak < 0 {
		result.add(IssueOutOfRange, "currentStreak", "Streaks must not be negative")
	}

	if last := s.LastCheckedInDay(); last != "" {
		if !IsValidDate(last) {
			result.add(IssueInvalidDateTime, "lastCheckedIn", "lastCheckedIn %q is not a YYYY-MM-DD date", last)
		} else if n := len(s.CheckInHistory); n > 0 && s.CheckInHistory[n-1] != last {
			result.add(IssueCountMismatch, "lastCheckedIn", "lastCheckedIn %s does not match last history entry %s", last, s.CheckInHistory[n-1])
		}
	}

	if s.NotificationMode != "" && !s.NotificationMode.Valid() {
		result.add(IssueInvalidEnum, "notificationMode", "Unknown notificationMode %q", s.NotificationMode)
	}
	for _, tm := range s.NotificationTimes {
		if !IsValidTime(tm) {
			result.add(IssueInvalidDateTime, "notificationTimes", "Invalid notification time %q", tm)
		}
	}
	for _, ds := range s.DailyScores {
		if !IsValidDate(ds.Date) {
			result.add(IssueInvalidDateTime, "dailyScores", "Daily score date %q is not a YYYY-MM-DD date", ds.Date)
		}
	}
	return result
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}
