package state

import (
	"fmt"

	"github.com/julianstephens/dosekeep/internal/cli"
	"github.com/julianstephens/dosekeep/internal/models"
	"github.com/julianstephens/dosekeep/internal/validation"
)

type CheckinCmd struct {
	Energy int `help:"Energy rating for today (1-10)."`
	Sleep  int `help:"Sleep rating for today (1-10)."`
	Mood   int `help:"Mood rating for today (1-10)."`
}

// scores returns nil when no rating flag was given.
func (c *CheckinCmd) scores() (*models.Scores, error) {
	if c.Energy == 0 && c.Sleep == 0 && c.Mood == 0 {
		return nil, nil
	}
	s := models.Scores{Energy: c.Energy, Sleep: c.Sleep, Mood: c.Mood}
	if result := validation.New().ValidateScores(s); result.HasIssues() {
		return nil, fmt.Errorf("invalid scores, give all three ratings\n%s", result.FormatReport())
	}
	return &s, nil
}

func (c *CheckinCmd) Run(ctx *cli.Context) error {
	scores, err := c.scores()
	if err != nil {
		return err
	}

	if ctx.Store.IsCheckedInToday() {
		ctx.Println("Already checked in today.")
		return nil
	}

	ctx.Store.CheckIn(scores)

	v := ctx.Store.View()
	ctx.Printf("✓ Checked in for %s\n", v.Today)
	ctx.Printf("  Streak: %d day(s) (longest %d)\n", v.State.CurrentStreak, v.State.LongestStreak)
	if scores != nil {
		ctx.Printf("  Energy %d · Sleep %d · Mood %d\n", scores.Energy, scores.Sleep, scores.Mood)
	}
	return nil
}

type HistoryCmd struct {
	Limit int `short:"n" help:"Show only the most recent N days (0 for all)." default:"0"`
}

func (c *HistoryCmd) Run(ctx *cli.Context) error {
	s := ctx.Store.State()
	days := s.CheckInHistory
	if len(days) == 0 {
		ctx.Println("No check-ins yet.")
		return nil
	}
	if c.Limit > 0 && c.Limit < len(days) {
		days = days[len(days)-c.Limit:]
	}

	ctx.Printf("Check-ins (%d total):\n\n", len(s.CheckInHistory))
	for i := len(days) - 1; i >= 0; i-- {
		day := days[i]
		if sc, ok := s.ScoresFor(day); ok {
			ctx.Printf("  %s  energy %2d  sleep %2d  mood %2d\n", day, sc.Energy, sc.Sleep, sc.Mood)
		} else {
			ctx.Printf("  %s\n", day)
		}
	}
	return nil
}
