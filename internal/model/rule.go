package model

// ClassificationRule matches a transaction description to a spend category
// with a base confidence. Rules are evaluated in declaration order; the
// first matching rule wins.
type ClassificationRule struct {
	Category       string
	Keywords       []string
	Patterns       []string
	BaseConfidence float64
}

// RuleSet is an ordered, versioned set of classification rules. A rule set
// is read-only at classification time; a running job pins the version it
// started with so reprocessing stays idempotent.
type RuleSet struct {
	Rules   []ClassificationRule
	Version int
}
