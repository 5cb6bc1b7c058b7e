package classify

import "github.com/wayfare-dev/wayfare/internal/model"

// DefaultRuleSetVersion is the version of the built-in rule set.
const DefaultRuleSetVersion = 1

// DefaultRuleSet returns the built-in classification rules. Declaration
// order is the tie-break: earlier rules win when several match.
func DefaultRuleSet() model.RuleSet {
	return model.RuleSet{
		Version: DefaultRuleSetVersion,
		Rules: []model.ClassificationRule{
			{
				Category: "AIRFARE",
				Keywords: []string{
					"airline", "airways", "delta", "united", "american air",
					"southwest", "jetblue", "alaska air", "spirit", "frontier",
					"flight",
				},
				BaseConfidence: 0.95,
			},
			{
				Category: "HOTEL",
				Keywords: []string{
					"hotel", "motel", "inn", "resort", "lodging", "marriott",
					"hilton", "hyatt", "sheraton", "westin", "holiday inn",
					"hampton", "courtyard", "fairfield", "residence inn",
				},
				BaseConfidence: 0.95,
			},
			{
				Category: "TRANSPORTATION",
				Keywords: []string{
					"uber", "lyft", "taxi", "cab", "rental", "hertz", "avis",
					"enterprise", "budget", "national", "parking", "toll",
				},
				BaseConfidence: 0.90,
			},
			{
				Category: "MEALS",
				Keywords: []string{
					"restaurant", "cafe", "coffee", "starbucks", "diner",
					"grill", "kitchen", "food", "pizza", "sushi", "chipotle",
					"mcdonalds", "subway", "panera", "dunkin",
				},
				Patterns:       []string{`\b(breakfast|lunch|dinner)\b`},
				BaseConfidence: 0.85,
			},
			{
				Category: "SUPPLIES",
				Keywords: []string{
					"office depot", "staples", "best buy", "apple store",
					"microsoft", "amazon", "supplies", "equipment",
				},
				BaseConfidence: 0.80,
			},
			{
				Category: "ENTERTAINMENT",
				Keywords: []string{
					"theater", "cinema", "concert", "museum", "sports",
					"golf", "entertainment",
				},
				BaseConfidence: 0.75,
			},
		},
	}
}
