package tui

import (
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/dosekeep/internal/constants"
)

func scoreOptions() []huh.Option[int] {
	opts := make([]huh.Option[int], 0, constants.MaxScore-constants.MinScore+1)
	for i := constants.MinScore; i <= constants.MaxScore; i++ {
		opts = append(opts, huh.NewOption(strconv.Itoa(i), i))
	}
	return opts
}

// NewRatingForm asks for today's energy, sleep and mood.
func NewRatingForm(fm *RatingFormModel) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Energy").
				Options(scoreOptions()...).
				Value(&fm.Energy),
			huh.NewSelect[int]().
				Title("Sleep").
				Options(scoreOptions()...).
				Value(&fm.Sleep),
			huh.NewSelect[int]().
				Title("Mood").
				Options(scoreOptions()...).
				Value(&fm.Mood),
		),
	).WithTheme(huh.ThemeDracula())
}
