// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CategoryUncategorized is assigned when no classification rule matches.
const CategoryUncategorized = "UNCATEGORIZED"

// Transaction represents a single financial transaction from any source.
// Once ingested the record is immutable except for the classification
// fields, which are set by pipeline passes or explicit user override.
type Transaction struct {
	Date               time.Time
	ExternalID         string
	AccountID          string
	Description        string
	RawLocation        string
	NormalizedLocation string
	Category           string
	BusinessPurpose    string
	Hash               string
	Amount             decimal.Decimal
	TripID             *int64
	ID                 int64
	Confidence         float64
	LocationResolved   bool
	IsBusiness         bool
	NeedsReview        bool
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.Description,
		t.ExternalID,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// LocationInfo is the result of resolving a transaction's merchant location
// against the configured home region.
type LocationInfo struct {
	Normalized  string
	OutOfRegion bool
	Resolved    bool
}
