// Package catalog holds the fixed choices offered during onboarding.
package catalog

// Item is one selectable choice. ID is what gets stored.
type Item struct {
	ID    string
	Label string
}

var Goals = []Item{
	{ID: "energy", Label: "More energy"},
	{ID: "sleep", Label: "Better sleep"},
	{ID: "focus", Label: "Sharper focus"},
	{ID: "stress", Label: "Less stress"},
	{ID: "metabolism", Label: "Metabolism"},
	{ID: "heart", Label: "Heart health"},
	{ID: "strength", Label: "Strength & recovery"},
	{ID: "immunity", Label: "Immunity"},
}

var Frictions = []Item{
	{ID: "forget", Label: "I just forget"},
	{ID: "no-results", Label: "I don't feel a difference"},
	{ID: "routine", Label: "My routine keeps changing"},
	{ID: "tired", Label: "Too tired to bother"},
	{ID: "unsure", Label: "Not sure"},
}

var Products = []Item{
	{ID: "multivitamin", Label: "Multivitamin"},
	{ID: "vitamin-d", Label: "Vitamin D"},
	{ID: "magnesium", Label: "Magnesium"},
	{ID: "omega-3", Label: "Omega-3"},
	{ID: "creatine", Label: "Creatine"},
	{ID: "zinc", Label: "Zinc"},
	{ID: "iron", Label: "Iron"},
	{ID: "probiotic", Label: "Probiotic"},
	{ID: "ashwagandha", Label: "Ashwagandha"},
	{ID: "collagen", Label: "Collagen"},
}

// MissedDoses maps the "how often do you take them" answer to the number of
// days per week stored in missedDoses.
var MissedDoses = []struct {
	Label string
	Days  int
}{
	{Label: "1–2 days a week", Days: 2},
	{Label: "3–4 days a week", Days: 4},
	{Label: "5–6 days a week", Days: 6},
	{Label: "Every single day", Days: 7},
}

// Label returns the display label for id in items, or id itself when it is
// not part of the catalog.
func Label(items []Item, id string) string {
	for _, it := range items {
		if it.ID == id {
			return it.Label
		}
	}
	return id
}
