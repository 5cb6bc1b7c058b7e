// Package trips implements gap-based trip grouping and trip-level
// confidence aggregation.
package trips

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
)

// Grouper partitions business-classified, location-flagged transactions
// into trips using a gap-based window.
type Grouper struct {
	gapDays int
}

// NewGrouper creates a grouper with the given maximum gap in days between
// consecutive trip members. Negative values are rejected here so they never
// reach the grouping algorithm.
func NewGrouper(gapDays int) (*Grouper, error) {
	if gapDays < 0 {
		return nil, fmt.Errorf("%w: gap days must be >= 0, got %d", common.ErrInvalidGroupingParameters, gapDays)
	}
	return &Grouper{gapDays: gapDays}, nil
}

// Group partitions the input into trips. Only out-of-region transactions
// join or start a trip; everything else stays ungrouped. The input is
// sorted by date (then external id, for a stable order), so re-running over
// an unchanged set with unchanged parameters yields an identical partition.
func (g *Grouper) Group(transactions []model.Transaction) []model.Trip {
	members := make([]model.Transaction, 0, len(transactions))
	for _, txn := range transactions {
		if txn.IsBusiness {
			members = append(members, txn)
		}
	}
	if len(members) == 0 {
		return nil
	}

	sort.SliceStable(members, func(i, j int) bool {
		if !members[i].Date.Equal(members[j].Date) {
			return members[i].Date.Before(members[j].Date)
		}
		return members[i].ExternalID < members[j].ExternalID
	})

	var trips []model.Trip
	current := []model.Transaction{members[0]}

	for _, txn := range members[1:] {
		last := current[len(current)-1]
		if daysBetween(last.Date, txn.Date) <= g.gapDays {
			current = append(current, txn)
			continue
		}
		trips = append(trips, buildTrip(current))
		current = []model.Transaction{txn}
	}
	trips = append(trips, buildTrip(current))

	return trips
}

// buildTrip computes a closed trip's aggregate attributes from its members.
func buildTrip(members []model.Transaction) model.Trip {
	trip := model.Trip{
		StartDate:      members[0].Date,
		EndDate:        members[len(members)-1].Date,
		Status:         model.TripStatusDraft,
		Transactions:   members,
		TransactionIDs: make([]int64, len(members)),
		CategoryTotals: make(map[string]decimal.Decimal),
		TotalAmount:    decimal.Zero,
	}

	for i, txn := range members {
		trip.TransactionIDs[i] = txn.ID
		trip.TotalAmount = trip.TotalAmount.Add(txn.Amount)

		category := txn.Category
		if category == "" {
			category = model.CategoryUncategorized
		}
		trip.CategoryTotals[category] = trip.CategoryTotals[category].Add(txn.Amount)
	}

	trip.DominantLocation = dominantLocation(members)
	return trip
}

// dominantLocation returns the most frequent normalized location among the
// members, ties broken by earliest occurrence.
func dominantLocation(members []model.Transaction) string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)

	for i, txn := range members {
		loc := txn.NormalizedLocation
		if loc == "" {
			continue
		}
		counts[loc]++
		if _, seen := firstSeen[loc]; !seen {
			firstSeen[loc] = i
		}
	}

	best := ""
	for loc, count := range counts {
		if best == "" {
			best = loc
			continue
		}
		switch {
		case count > counts[best]:
			best = loc
		case count == counts[best] && firstSeen[loc] < firstSeen[best]:
			best = loc
		}
	}
	return best
}

// daysBetween returns the whole-day difference between two dates, ignoring
// time-of-day.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	at := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bt := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bt.Sub(at).Hours() / 24)
}
