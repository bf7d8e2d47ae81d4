package onboard

import (
	"errors"
	"reflect"
	"testing"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/dosekeep/internal/models"
)

type recordingStore struct {
	state   models.AppState
	patches []models.Patch
}

func (r *recordingStore) UpdateState(p models.Patch) {
	r.patches = append(r.patches, p)
	r.state, _ = r.state.Apply(p)
}

// scripted answers each step from a map keyed by step name.
func scripted(fill map[string]func(a *Answers)) Asker {
	return func(step Step, a *Answers) error {
		if f, ok := fill[step.Name]; ok {
			f(a)
		}
		return nil
	}
}

func fullScript() map[string]func(a *Answers) {
	return map[string]func(a *Answers){
		"name":          func(a *Answers) { a.Name = " Alex " },
		"goal":          func(a *Answers) { a.Goal = "energy" },
		"products":      func(a *Answers) { a.Products = []string{"omega-3", "zinc"} },
		"friction":      func(a *Answers) { a.Friction = "forget" },
		"missed-doses":  func(a *Answers) { a.MissedDays = 4 },
		"routine-time":  func(a *Answers) { a.RoutineTime = "07:30" },
		"notifications": func(a *Answers) { a.Notify = true },
		"notification-schedule": func(a *Answers) {
			a.Mode = models.NotificationSpecific
			a.Times = "07:30, 21:00"
		},
	}
}

func TestRunSavesEachAnswer(t *testing.T) {
	store := &recordingStore{state: models.Default()}
	a := FromState(store.state)

	if err := Run(store, Steps(), a, scripted(fullScript())); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(store.patches) != len(Steps())+1 {
		t.Errorf("expected one update per step plus completion, got %d", len(store.patches))
	}
	last := store.patches[len(store.patches)-1]
	if !reflect.DeepEqual(last, models.Patch{"onboardingComplete": true}) {
		t.Errorf("expected completion last, got %v", last)
	}

	s := store.state
	if s.UserName != "Alex" || s.Goal != "energy" || s.Friction != "forget" || s.MissedDoses != 4 {
		t.Errorf("unexpected state: %+v", s)
	}
	if !reflect.DeepEqual(s.Products, []string{"omega-3", "zinc"}) {
		t.Errorf("unexpected products: %v", s.Products)
	}
	if !s.NotificationsEnabled || !reflect.DeepEqual(s.NotificationTimes, []string{"07:30", "21:00"}) {
		t.Errorf("unexpected notifications: %v %v", s.NotificationsEnabled, s.NotificationTimes)
	}
	if s.RoutineTime != "07:30" || !s.OnboardingComplete {
		t.Errorf("unexpected routine/complete: %q %v", s.RoutineTime, s.OnboardingComplete)
	}
}

func TestRunSkipsScheduleWhenNotificationsDeclined(t *testing.T) {
	script := fullScript()
	script["notifications"] = func(a *Answers) { a.Notify = false }
	asked := map[string]bool{}
	ask := func(step Step, a *Answers) error {
		asked[step.Name] = true
		return scripted(script)(step, a)
	}

	store := &recordingStore{state: models.Default()}
	if err := Run(store, Steps(), FromState(store.state), ask); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if asked["notification-schedule"] {
		t.Error("schedule step asked although notifications were declined")
	}
	if store.state.NotificationsEnabled {
		t.Error("expected notifications disabled")
	}
}

func TestRunAbortKeepsEarlierAnswers(t *testing.T) {
	script := fullScript()
	ask := func(step Step, a *Answers) error {
		if step.Name == "friction" {
			return huh.ErrUserAborted
		}
		return scripted(script)(step, a)
	}

	store := &recordingStore{state: models.Default()}
	err := Run(store, Steps(), FromState(store.state), ask)
	if !errors.Is(err, huh.ErrUserAborted) {
		t.Fatalf("expected ErrUserAborted, got %v", err)
	}
	if store.state.UserName != "Alex" || store.state.Goal != "energy" {
		t.Errorf("earlier answers not saved: %+v", store.state)
	}
	if store.state.OnboardingComplete {
		t.Error("onboarding marked complete after abort")
	}
}

func TestRunRejectsInvalidAnswer(t *testing.T) {
	script := fullScript()
	script["name"] = func(a *Answers) { a.Name = "   " }

	store := &recordingStore{state: models.Default()}
	if err := Run(store, Steps(), FromState(store.state), scripted(script)); err == nil {
		t.Fatal("expected an error for blank name")
	}
	if len(store.patches) != 0 {
		t.Errorf("expected nothing saved, got %v", store.patches)
	}
}

func TestFromStatePrefills(t *testing.T) {
	s := models.Default()
	s.UserName = "Sam"
	s.NotificationTimes = []string{"08:00", "20:00"}
	s.NotificationMode = ""

	a := FromState(s)
	if a.Name != "Sam" || a.Times != "08:00, 20:00" || a.RoutineTime != "08:00" {
		t.Errorf("unexpected answers: %+v", a)
	}
	if a.Mode != models.NotificationSpecific {
		t.Errorf("expected invalid mode replaced, got %q", a.Mode)
	}
}

func TestParseTimes(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "", want: []string{}},
		{in: "08:00", want: []string{"08:00"}},
		{in: " 08:00 , 21:30,", want: []string{"08:00", "21:30"}},
		{in: "8am", wantErr: true},
		{in: "24:00", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTimes(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimes(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseTimes(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStepFormsBuild(t *testing.T) {
	a := FromState(models.Default())
	for _, step := range Steps() {
		if step.Form(a) == nil {
			t.Errorf("step %s built no form", step.Name)
		}
	}
}
