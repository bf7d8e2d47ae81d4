package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/julianstephens/dosekeep/internal/appstate"
	"github.com/julianstephens/dosekeep/internal/catalog"
	"github.com/julianstephens/dosekeep/internal/cli"
	"github.com/julianstephens/dosekeep/internal/models"
	"github.com/julianstephens/dosekeep/internal/validation"
)

type ShowCmd struct {
	JSON bool `help:"Print the raw record with derived fields as JSON."`
}

type showOutput struct {
	State            models.AppState `json:"state"`
	Today            string          `json:"today"`
	IsCheckedInToday bool            `json:"isCheckedInToday"`
	CurrentDay       int             `json:"currentDay"`
}

func (c *ShowCmd) Run(ctx *cli.Context) error {
	v := ctx.Store.View()
	if c.JSON {
		data, err := json.MarshalIndent(showOutput{
			State:            v.State,
			Today:            v.Today,
			IsCheckedInToday: v.IsCheckedInToday,
			CurrentDay:       v.CurrentDay,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode app state: %w", err)
		}
		ctx.Println(string(data))
		return nil
	}

	s := v.State
	name := s.UserName
	if name == "" {
		name = "(not set)"
	}
	ctx.Printf("Name:           %s\n", name)
	ctx.Printf("Goal:           %s\n", catalog.Label(catalog.Goals, s.Goal))
	ctx.Printf("Onboarded:      %t\n", s.OnboardingComplete)
	ctx.Printf("Routine time:   %s\n", s.RoutineTime)
	ctx.Printf("Products:       %s\n", productSummary(s))
	ctx.Printf("Notifications:  %s\n", notificationSummary(s))
	ctx.Println()
	printStatus(ctx, v)
	return nil
}

func productSummary(s models.AppState) string {
	var names []string
	for _, id := range s.Products {
		names = append(names, catalog.Label(catalog.Products, id))
	}
	for _, p := range s.CustomProducts {
		names = append(names, p.Name+" (custom)")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func notificationSummary(s models.AppState) string {
	if !s.NotificationsEnabled {
		return "off"
	}
	if s.NotificationMode == models.NotificationSpecific && len(s.NotificationTimes) > 0 {
		return fmt.Sprintf("%s at %s", s.NotificationMode, strings.Join(s.NotificationTimes, ", "))
	}
	return string(s.NotificationMode)
}

type StatusCmd struct{}

func (c *StatusCmd) Run(ctx *cli.Context) error {
	printStatus(ctx, ctx.Store.View())
	return nil
}

func printStatus(ctx *cli.Context, v appstate.View) {
	ctx.Printf("Day %d\n", v.CurrentDay)
	ctx.Printf("Current streak: %d\n", v.State.CurrentStreak)
	ctx.Printf("Longest streak: %d\n", v.State.LongestStreak)
	ctx.Printf("Days taken:     %d\n", v.State.TotalDaysTaken)
	if v.IsCheckedInToday {
		ctx.Println("✓ Checked in today")
	} else {
		ctx.Println("○ Not checked in today")
	}
}

type SetCmd struct {
	Assignments  []string `arg:"" name:"key=value" help:"Fields to set. Values are parsed as JSON and fall back to a plain string."`
	AllowUnknown bool     `help:"Allow keys this version does not know about."`
}

func (c *SetCmd) Run(ctx *cli.Context) error {
	patch, err := ParseAssignments(c.Assignments)
	if err != nil {
		return err
	}

	v := validation.New()
	v.AllowUnknown = c.AllowUnknown
	result := v.ValidatePatch(patch)
	if result.HasIssues() {
		return fmt.Errorf("refusing to apply patch\n%s", result.FormatReport())
	}
	if _, rejected := ctx.Store.State().Apply(patch); len(rejected) > 0 {
		return fmt.Errorf("values do not match the field type: %s", strings.Join(rejected, ", "))
	}

	ctx.Store.UpdateState(patch)
	ctx.Printf("✓ Updated %s\n", strings.Join(patch.Keys(), ", "))
	return nil
}

// ParseAssignments turns KEY=VALUE arguments into a patch. VALUE is decoded
// as JSON when it parses, otherwise it is taken as a string.
func ParseAssignments(args []string) (models.Patch, error) {
	patch := make(models.Patch, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected KEY=VALUE", arg)
		}
		if _, dup := patch[key]; dup {
			return nil, fmt.Errorf("key %q given more than once", key)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		patch[key] = value
	}
	return patch, nil
}

type ResetCmd struct {
	Yes bool `short:"y" help:"Do not ask for confirmation."`
}

func (c *ResetCmd) Run(ctx *cli.Context) error {
	if !c.Yes {
		ctx.Println("⚠️  WARNING: This deletes your streak, check-in history and onboarding answers.")
		ctx.Printf("Continue? [y/N]: ")

		response, err := bufio.NewReader(ctx.In).ReadString('\n')
		if err != nil && response == "" {
			return err
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			ctx.Println("Reset cancelled.")
			return nil
		}
	}

	ctx.PerformAutomaticBackup()
	if err := ctx.Store.Reset(ctx.Ctx); err != nil {
		return fmt.Errorf("failed to reset app state: %w", err)
	}
	ctx.Println("✓ App state reset to defaults")
	return nil
}
