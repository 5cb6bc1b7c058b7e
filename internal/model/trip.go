package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TripStatus tracks a trip through the review workflow.
type TripStatus string

// Trip status constants.
const (
	TripStatusDraft       TripStatus = "draft"
	TripStatusNeedsReview TripStatus = "needs_review"
	TripStatusReady       TripStatus = "ready"
	TripStatusSubmitted   TripStatus = "submitted"
)

// Trip is a maximal run of business-classified transactions whose
// consecutive dates fall within the configured gap threshold.
//
// Invariants: StartDate is the earliest member date, EndDate the latest,
// and TotalAmount the sum of member amounts.
type Trip struct {
	StartDate        time.Time
	EndDate          time.Time
	CategoryTotals   map[string]decimal.Decimal
	DominantLocation string
	BusinessPurpose  string
	Status           TripStatus
	Transactions     []Transaction
	TransactionIDs   []int64
	TotalAmount      decimal.Decimal
	ID               int64
	Confidence       float64
	NeedsReview      bool
}

// DurationDays returns the inclusive number of days the trip spans.
func (t *Trip) DurationDays() int {
	return int(t.EndDate.Sub(t.StartDate).Hours()/24) + 1
}
