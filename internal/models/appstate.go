package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ErrNotObject is returned when a stored blob is valid JSON but not an object.
var ErrNotObject = errors.New("app state is not a JSON object")

// NotificationMode selects how reminders are spread across the day.
type NotificationMode string

const (
	NotificationSpecific NotificationMode = "specific"
	NotificationRandom   NotificationMode = "random"
	NotificationHourly   NotificationMode = "hourly"
)

// Valid reports whether m is one of the known reminder strategies.
func (m NotificationMode) Valid() bool {
	switch m {
	case NotificationSpecific, NotificationRandom, NotificationHourly:
		return true
	}
	return false
}

// CustomProduct is a supplement entry authored by the user rather than picked
// from the catalog.
type CustomProduct struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Tagline string `json:"tagline"`
	Color   string `json:"color"`
}

// Scores is the optional self-rating recorded with a check-in.
type Scores struct {
	Energy int `json:"energy"`
	Sleep  int `json:"sleep"`
	Mood   int `json:"mood"`
}

// DailyScore is a Scores triple pinned to the day it was recorded.
type DailyScore struct {
	Date string `json:"date"` // YYYY-MM-DD format
	Scores
}

// AppState is the whole persisted record. JSON names match the blob the
// mobile client writes so the two can share stored data.
type AppState struct {
	Goal                 string           `json:"goal"`
	GapScore             int              `json:"gapScore"`
	Products             []string         `json:"products"`
	CustomProducts       []CustomProduct  `json:"customProducts"`
	RoutineTime          string           `json:"routineTime"`
	UserName             string           `json:"userName"`
	Friction             string           `json:"friction"`
	MissedDoses          int              `json:"missedDoses"`
	MissedDosesPct       float64          `json:"missedDosesPct"`
	Frequency            int              `json:"frequency"`
	EnergyLevel          int              `json:"energyLevel"`
	CommitmentLevel      string           `json:"commitmentLevel"`
	OnboardingComplete   bool             `json:"onboardingComplete"`
	NotificationsEnabled bool             `json:"notificationsEnabled"`
	NotificationMode     NotificationMode `json:"notificationMode"`
	NotificationTimes    []string         `json:"notificationTimes"`

	LastCheckedIn  *string      `json:"lastCheckedIn"` // YYYY-MM-DD format
	CheckInHistory []string     `json:"checkInHistory"`
	CurrentStreak  int          `json:"currentStreak"`
	LongestStreak  int          `json:"longestStreak"`
	TotalDaysTaken int          `json:"totalDaysTaken"`
	DailyScores    []DailyScore `json:"dailyScores"`

	StreakShieldAvailable bool    `json:"streakShieldAvailable"`
	StreakShieldUsedDate  *string `json:"streakShieldUsedDate"`

	// Extra holds keys this build does not know about. They are written back
	// untouched so newer clients sharing the blob do not lose data.
	Extra map[string]json.RawMessage `json:"-"`
}

// Default returns the zero-value record every stored blob is laid over.
func Default() AppState {
	return AppState{
		Products:          []string{},
		CustomProducts:    []CustomProduct{},
		RoutineTime:       "08:00",
		NotificationMode:  NotificationSpecific,
		NotificationTimes: []string{},
		CheckInHistory:    []string{},
		DailyScores:       []DailyScore{},
	}
}

// appState has the same layout as AppState without its JSON methods.
type appState AppState

// knownFields maps each JSON field name to its struct field index.
var knownFields = func() map[string]int {
	fields := make(map[string]int)
	t := reflect.TypeOf(appState{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields[name] = i
	}
	return fields
}()

// IsKnownField reports whether key names an AppState field. Matching is
// exact: "Goal" is an unknown key, not goal.
func IsKnownField(key string) bool {
	_, ok := knownFields[key]
	return ok
}

// setField decodes raw into a fresh value of the named field and replaces
// the field with it. On error s is left untouched and the returned
// *json.UnmarshalTypeError names the field.
func (s *AppState) setField(name string, raw json.RawMessage) error {
	fv := reflect.ValueOf(s).Elem().Field(knownFields[name])
	v := reflect.New(fv.Type())
	if err := json.Unmarshal(raw, v.Interface()); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if typeErr.Field == "" {
				typeErr.Field = name
			} else {
				typeErr.Field = name + "." + typeErr.Field
			}
		}
		return err
	}
	fv.Set(v.Elem())
	return nil
}

func (s AppState) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(appState(s))
	if err != nil || len(s.Extra) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if IsKnownField(k) {
			continue
		}
		fields[k] = v
	}
	return json.Marshal(fields)
}

// UnmarshalJSON lays data over the receiver field by field. Fields absent
// from data keep their current value. A type mismatch on one field is
// returned as *json.UnmarshalTypeError after every other field is decoded.
func (s *AppState) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: found %s", ErrNotObject, typeErr.Value)
		}
		return err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var firstErr error
	for _, k := range keys {
		if IsKnownField(k) {
			if err := s.setField(k, fields[k]); err != nil && firstErr == nil {
				firstErr = err
			}
			continue
		}
		if s.Extra == nil {
			s.Extra = make(map[string]json.RawMessage)
		}
		s.Extra[k] = fields[k]
	}
	s.normalize()
	return firstErr
}

// normalize replaces nil collections with empty ones so a blob carrying
// explicit nulls still serializes as arrays.
func (s *AppState) normalize() {
	if s.Products == nil {
		s.Products = []string{}
	}
	if s.CustomProducts == nil {
		s.CustomProducts = []CustomProduct{}
	}
	if s.NotificationTimes == nil {
		s.NotificationTimes = []string{}
	}
	if s.CheckInHistory == nil {
		s.CheckInHistory = []string{}
	}
	if s.DailyScores == nil {
		s.DailyScores = []DailyScore{}
	}
}

// Clone returns a deep copy of s.
func (s AppState) Clone() AppState {
	c := s
	c.Products = append([]string{}, s.Products...)
	c.CustomProducts = append([]CustomProduct{}, s.CustomProducts...)
	c.NotificationTimes = append([]string{}, s.NotificationTimes...)
	c.CheckInHistory = append([]string{}, s.CheckInHistory...)
	c.DailyScores = append([]DailyScore{}, s.DailyScores...)
	c.LastCheckedIn = cloneString(s.LastCheckedIn)
	c.StreakShieldUsedDate = cloneString(s.StreakShieldUsedDate)
	if s.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// LastCheckedInDay returns lastCheckedIn or "" when the user never checked in.
func (s AppState) LastCheckedInDay() string {
	if s.LastCheckedIn == nil {
		return ""
	}
	return *s.LastCheckedIn
}

// ScoresFor returns the rating recorded on day, if any.
func (s AppState) ScoresFor(day string) (Scores, bool) {
	for _, ds := range s.DailyScores {
		if ds.Date == day {
			return ds.Scores, true
		}
	}
	return Scores{}, false
}
