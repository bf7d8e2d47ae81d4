package onboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/dosekeep/internal/catalog"
	"github.com/julianstephens/dosekeep/internal/cli"
	"github.com/julianstephens/dosekeep/internal/logger"
	"github.com/julianstephens/dosekeep/internal/models"
	"github.com/julianstephens/dosekeep/internal/validation"
)

// Answers collects the questionnaire responses. Fields are bound directly to
// the huh fields of each step.
type Answers struct {
	Name        string
	Goal        string
	Products    []string
	Friction    string
	MissedDays  int
	Notify      bool
	Mode        models.NotificationMode
	Times       string
	RoutineTime string
}

// FromState pre-fills answers with what is already stored so re-running the
// questionnaire starts from the current values.
func FromState(s models.AppState) *Answers {
	a := &Answers{
		Name:        s.UserName,
		Goal:        s.Goal,
		Products:    append([]string{}, s.Products...),
		Friction:    s.Friction,
		MissedDays:  s.MissedDoses,
		Notify:      s.NotificationsEnabled,
		Mode:        s.NotificationMode,
		Times:       strings.Join(s.NotificationTimes, ", "),
		RoutineTime: s.RoutineTime,
	}
	if !a.Mode.Valid() {
		a.Mode = models.NotificationSpecific
	}
	return a
}

// Step is one screen of the questionnaire. Each answered step is saved with
// its own UpdateState call.
type Step struct {
	Name  string
	Skip  func(a *Answers) bool
	Form  func(a *Answers) *huh.Form
	Patch func(a *Answers) (models.Patch, error)
}

// Asker shows a step and fills a. HuhAsker is the interactive one.
type Asker func(step Step, a *Answers) error

// Updater is the part of the app state store the questionnaire needs.
type Updater interface {
	UpdateState(patch models.Patch)
}

func HuhAsker(step Step, a *Answers) error {
	return step.Form(a).WithTheme(huh.ThemeDracula()).Run()
}

func options(items []catalog.Item) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(items))
	for _, it := range items {
		opts = append(opts, huh.NewOption(it.Label, it.ID))
	}
	return opts
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", what)
		}
		return nil
	}
}

// ParseTimes splits a comma separated list of HH:MM times.
func ParseTimes(s string) ([]string, error) {
	times := []string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !validation.IsValidTime(part) {
			return nil, fmt.Errorf("invalid time %q, expected HH:MM", part)
		}
		times = append(times, part)
	}
	return times, nil
}

func Steps() []Step {
	return []Step{
		{
			Name: "name",
			Form: func(a *Answers) *huh.Form {
				return huh.NewForm(huh.NewGroup(
					huh.NewInput().
						Title("What should we call you?").
						Value(&a.Name).
						Validate(required("name")),
				))
			},
			Patch: func(a *Answers) (models.Patch, error) {
				name := strings.TrimSpace(a.Name)
				if name == "" {
					return nil, errors.New("name cannot be empty")
				}
				return models.Patch{"userName": name}, nil
			},
		},
		{
			Name: "goal",
			Form: func(a *Answers) *huh.Form {
				return huh.NewForm(huh.NewGroup(
					huh.NewSelect[string]().
						Title("What do you want your supplements to do for you?").
						Options(options(catalog.Goals)...).
						Value(&a.Goal),
				))
			},
			Patch: func(a *Answers) (models.Patch, error) {
				return models.Patch{"goal": a.Goal}, nil
			},
		},
		{
			Name: "products",
			Form: func(a *Answers) *huh.Form {
				return huh.NewForm(huh.NewGroup(
					huh.NewMultiSelect[string]().
						Title("Which supplements do you take?").
						Options(options(catalog.Products)...).
						Value(&a.Products).
						Validate(func(s []string) error {
							if len(s) == 0 {
								return errors.New("pick at least one")
							}
							return nil
						}),
				))
			},
			Patch: func(a *Answers) (models.Patch, error) {
				if len(a.Products) == 0 {
					return nil, errors.New("pick at least one product")
				}
				return models.Patch{"products": append([]string{}, a.Products...)}, nil
			},
		},
		{
			Name: "friction",
			Form: func(a *Answers) *huh.Form {
				return huh.NewForm(huh.NewGroup(
					huh.NewSelect[string]().
						Title("What gets in the way most?").
						Options(options(catalog.Frictions)...).
						Value(&a.Friction),
				))
			},
			Patch: func(a *Answers) (models.Patch, error) {
				return models.Patch{"friction": a.Friction}, nil
			},
		},
		{
			Name: "missed-doses",
			Form: func(a *Answers) *huh.Form {
				opts := make([]huh.Option[int], 0, len(catalog.MissedDoses))
				for _, o := range catalog.MissedDoses {
					opts = append(opts, huh.NewOption(o.Label, o.Days))
				}
				return huh.NewForm(huh.NewGroup(
					huh.NewSelect[int]().
						Title("Honestly, how often do you take them?").
						Options(opts...).
						Value(&a.MissedDays),
				))
			},
			Patch: func(a *Answers) (models.Patch, error) {
				return models.Patch{"missedDoses": a.MissedDays}, nil
			},
		},
		{
			Name: "routine-time",
			Form: func(a *Answers) *huh.Form {
				return huh.NewForm(huh.NewGroup(
					huh.NewInput().
						Title("When do you usually take them? (HH:MM)").
						Value(&a.RoutineTime).
						Validate(func(s string) error {
							if !validation.IsValidTime(strings.TrimSpace(s)) {
								return errors.New("expected HH:MM")
							}
							return nil
						}),
				))
			},
			Patch: func(a *Answers) (models.Patch, error) {
				t := strings.TrimSpace(a.RoutineTime)
				if !validation.IsValidTime(t) {
					return nil, fmt.Errorf("invalid routine time %q", a.RoutineTime)
				}
				return models.Patch{"routineTime": t}, nil
			},
		},
		{
			Name: "notifications",
			Form: func(a *Answers) *huh.Form {
				return huh.NewForm(huh.NewGroup(
					huh.NewConfirm().
						Title("Want a daily reminder?").
						Affirmative("Yes").
						Negative("Not now").
						Value(&a.Notify),
				))
			},
			Patch: func(a *Answers) (models.Patch, error) {
				return models.Patch{"notificationsEnabled": a.Notify}, nil
			},
		},
		{
			Name: "notification-schedule",
			Skip: func(a *Answers) bool { return !a.Notify },
			Form: func(a *Answers) *huh.Form {
				return huh.NewForm(huh.NewGroup(
					huh.NewSelect[models.NotificationMode]().
						Title("How should reminders be spread?").
						Options(
							huh.NewOption("At specific times", models.NotificationSpecific),
							huh.NewOption("At a random time", models.NotificationRandom),
							huh.NewOption("Every hour until I check in", models.NotificationHourly),
						).
						Value(&a.Mode),
					huh.NewInput().
						Title("Reminder times (comma separated HH:MM)").
						Description("Only used for specific times").
						Value(&a.Times).
						Validate(func(s string) error {
							_, err := ParseTimes(s)
							return err
						}),
				))
			},
			Patch: func(a *Answers) (models.Patch, error) {
				times, err := ParseTimes(a.Times)
				if err != nil {
					return nil, err
				}
				if a.Mode == models.NotificationSpecific && len(times) == 0 {
					times = []string{strings.TrimSpace(a.RoutineTime)}
				}
				return models.Patch{
					"notificationMode":  a.Mode,
					"notificationTimes": times,
				}, nil
			},
		},
	}
}

// Run walks steps in order, saving each answer as soon as it is given. The
// questionnaire is marked complete only after the last step.
func Run(store Updater, steps []Step, a *Answers, ask Asker) error {
	for _, step := range steps {
		if step.Skip != nil && step.Skip(a) {
			continue
		}
		if err := ask(step, a); err != nil {
			return err
		}
		patch, err := step.Patch(a)
		if err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
		store.UpdateState(patch)
		logger.Debug("Saved onboarding answer", "step", step.Name)
	}
	store.UpdateState(models.Patch{"onboardingComplete": true})
	return nil
}

type OnboardCmd struct {
	Force bool `help:"Run the questionnaire again even if it was completed."`
}

func (c *OnboardCmd) Run(ctx *cli.Context) error {
	s := ctx.Store.State()
	if s.OnboardingComplete && !c.Force {
		ctx.Println("Onboarding already complete. Use --force to answer again.")
		return nil
	}

	err := Run(ctx.Store, Steps(), FromState(s), HuhAsker)
	if errors.Is(err, huh.ErrUserAborted) {
		ctx.Println("Onboarding paused. Answers so far are saved.")
		return nil
	}
	if err != nil {
		return err
	}

	name := ctx.Store.State().UserName
	ctx.Printf("✓ You're all set, %s. Run 'dosekeep checkin' after your first dose.\n", name)
	return nil
}
