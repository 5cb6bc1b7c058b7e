package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wayfare-dev/wayfare/internal/model"
)

func TestClassifyCategories(t *testing.T) {
	c := NewClassifier(DefaultRuleSet())

	tests := []struct {
		name         string
		description  string
		wantCategory string
		wantConf     float64
	}{
		{
			name:         "single keyword hit stays below base confidence",
			description:  "DELTA 0062341",
			wantCategory: "AIRFARE",
			wantConf:     0.95 * 0.9,
		},
		{
			name:         "two hits",
			description:  "MARRIOTT HOTEL DOWNTOWN",
			wantCategory: "HOTEL",
			wantConf:     0.95 * 0.95,
		},
		{
			name:         "three hits earn full base confidence",
			description:  "RESIDENCE INN BY MARRIOTT",
			wantCategory: "HOTEL",
			wantConf:     0.95 * 1.0,
		},
		{
			name:         "rideshare",
			description:  "UBER *TRIP HELP.UBER.COM",
			wantCategory: "TRANSPORTATION",
			wantConf:     0.90 * 0.9,
		},
		{
			name:         "meal by regex pattern",
			description:  "TEAM DINNER RECEIPT 84",
			wantCategory: "MEALS",
			wantConf:     0.85 * 0.9,
		},
		{
			name:         "case insensitive keywords",
			description:  "starbucks store #4421",
			wantCategory: "MEALS",
			wantConf:     0.85 * 0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match := c.Classify(tt.description)
			assert.True(t, match.Matched)
			assert.Equal(t, tt.wantCategory, match.Category)
			assert.InDelta(t, tt.wantConf, match.Confidence, 1e-9)
		})
	}
}

func TestClassifyFirstMatchingRuleWins(t *testing.T) {
	c := NewClassifier(DefaultRuleSet())

	// Matches both HOTEL ("hilton") and MEALS ("restaurant"); the earlier
	// rule wins regardless of hit counts.
	match := c.Classify("HILTON GARDEN RESTAURANT")
	assert.Equal(t, "HOTEL", match.Category)
}

func TestClassifyNoMatch(t *testing.T) {
	c := NewClassifier(DefaultRuleSet())

	match := c.Classify("WIRE TRANSFER FEE")
	assert.False(t, match.Matched)
	assert.Equal(t, model.CategoryUncategorized, match.Category)
	assert.Zero(t, match.Confidence)
	assert.Equal(t, -1, match.RuleIndex)
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewClassifier(DefaultRuleSet())

	first := c.Classify("ALASKA AIR 027")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify("ALASKA AIR 027"))
	}
}

func TestClassifyConfidenceStaysInRange(t *testing.T) {
	rules := model.RuleSet{
		Version: 1,
		Rules: []model.ClassificationRule{
			{
				Category:       "MEALS",
				Keywords:       []string{"cafe", "coffee", "espresso", "latte", "bakery"},
				BaseConfidence: 1.0,
			},
		},
	}
	c := NewClassifier(rules)

	// Five hits: the specificity factor is capped, so even a base of 1.0
	// never pushes confidence above 1.
	match := c.Classify("CAFE COFFEE ESPRESSO LATTE BAKERY")
	assert.LessOrEqual(t, match.Confidence, 1.0)
	assert.Greater(t, match.Confidence, 0.0)
}

func TestClassifierSkipsInvalidPatterns(t *testing.T) {
	rules := model.RuleSet{
		Version: 1,
		Rules: []model.ClassificationRule{
			{
				Category:       "MEALS",
				Keywords:       []string{"cafe"},
				Patterns:       []string{`(unclosed`},
				BaseConfidence: 0.85,
			},
		},
	}
	c := NewClassifier(rules)

	match := c.Classify("CORNER CAFE")
	assert.Equal(t, "MEALS", match.Category, "keywords still apply when a pattern fails to compile")
}
