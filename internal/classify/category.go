package classify

import (
	"regexp"
	"strings"

	"github.com/wayfare-dev/wayfare/internal/model"
)

// Match is the outcome of evaluating a transaction against a rule set.
type Match struct {
	Category   string
	Confidence float64
	RuleIndex  int
	Matched    bool
}

// Classifier assigns spend categories from an ordered, versioned rule set.
// The classifier is pure: identical inputs against the same rule-set
// version always produce identical outputs, which keeps reprocessing
// idempotent.
type Classifier struct {
	compiled map[int][]*regexp.Regexp
	rules    model.RuleSet
}

// NewClassifier creates a classifier over the given rule set. Regex
// patterns are compiled up front; invalid patterns are skipped rather than
// failing the whole rule set.
func NewClassifier(rules model.RuleSet) *Classifier {
	c := &Classifier{
		rules:    rules,
		compiled: make(map[int][]*regexp.Regexp),
	}

	for i, rule := range rules.Rules {
		for _, pattern := range rule.Patterns {
			if re, err := regexp.Compile(`(?i)` + pattern); err == nil {
				c.compiled[i] = append(c.compiled[i], re)
			}
		}
	}

	return c
}

// Version returns the rule-set version this classifier evaluates.
func (c *Classifier) Version() int {
	return c.rules.Version
}

// Classify evaluates the ordered rule set and returns the first rule whose
// pattern matches; ties are broken by declaration order. Confidence is the
// rule's base confidence scaled by keyword-match specificity and always
// stays within [0,1]. When no rule matches the result is UNCATEGORIZED
// with confidence 0.
func (c *Classifier) Classify(description string) Match {
	upper := strings.ToUpper(description)

	for i, rule := range c.rules.Rules {
		hits := 0
		for _, keyword := range rule.Keywords {
			if strings.Contains(upper, strings.ToUpper(keyword)) {
				hits++
			}
		}
		for _, re := range c.compiled[i] {
			if re.MatchString(description) {
				hits++
			}
		}

		if hits == 0 {
			continue
		}

		return Match{
			Category:   rule.Category,
			Confidence: rule.BaseConfidence * specificityFactor(hits),
			RuleIndex:  i,
			Matched:    true,
		}
	}

	return Match{
		Category:   model.CategoryUncategorized,
		Confidence: 0.0,
		RuleIndex:  -1,
	}
}

// specificityFactor scales confidence by how many of a rule's keywords or
// patterns hit. A single hit keeps the result below the base confidence;
// three or more hits earn the full base confidence. The factor is bounded
// in (0,1] so the product can never leave [0,1].
func specificityFactor(hits int) float64 {
	extra := hits - 1
	if extra > 2 {
		extra = 2
	}
	return 0.9 + 0.05*float64(extra)
}
