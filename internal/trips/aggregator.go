package trips

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/wayfare-dev/wayfare/internal/model"
)

// ReviewStore persists trip review flags. Implemented by storage.Store.
type ReviewStore interface {
	WithTx(ctx context.Context, fn func(*sql.Tx) error) error
	UpdateTripReviewTx(ctx context.Context, tx *sql.Tx, trip *model.Trip) error
}

// highConfidence is the score above which a classification counts as high
// confidence in batch summaries, independent of the review threshold.
const highConfidence = 0.9

// ReviewSummary aggregates review counts for a batch, used to report time
// saved over manual categorization.
type ReviewSummary struct {
	HighConfidenceCount   int
	ReviewCount           int
	AutoApprovedCount     int
	EstimatedMinutesSaved int
}

// Aggregator rolls per-transaction confidence into trip-level scores and
// review flags.
type Aggregator struct {
	store     ReviewStore
	threshold float64
}

// NewAggregator creates an aggregator with the given confidence threshold.
// The store may be nil when persistence is not needed (pure aggregation).
func NewAggregator(store ReviewStore, threshold float64) *Aggregator {
	return &Aggregator{
		store:     store,
		threshold: threshold,
	}
}

// TripConfidence computes the amount-weighted mean of the member
// transaction confidences. A zero total amount falls back to the plain
// mean so an all-zero trip still gets a meaningful score.
func TripConfidence(trip *model.Trip) float64 {
	if len(trip.Transactions) == 0 {
		return 0
	}

	total := decimal.Zero
	for _, txn := range trip.Transactions {
		total = total.Add(txn.Amount)
	}

	if total.IsZero() {
		sum := 0.0
		for _, txn := range trip.Transactions {
			sum += txn.Confidence
		}
		return sum / float64(len(trip.Transactions))
	}

	weighted := 0.0
	totalFloat := total.InexactFloat64()
	for _, txn := range trip.Transactions {
		weighted += txn.Confidence * txn.Amount.InexactFloat64()
	}
	return weighted / totalFloat
}

// Aggregate sets the trip's confidence, review flag, and status. A trip
// needs review when its confidence is below the threshold or any member is
// individually flagged.
func (a *Aggregator) Aggregate(trip *model.Trip) {
	trip.Confidence = TripConfidence(trip)

	trip.NeedsReview = trip.Confidence < a.threshold
	for _, txn := range trip.Transactions {
		if txn.NeedsReview {
			trip.NeedsReview = true
			break
		}
	}

	if trip.Status != model.TripStatusSubmitted {
		if trip.NeedsReview {
			trip.Status = model.TripStatusNeedsReview
		} else {
			trip.Status = model.TripStatusReady
		}
	}
}

// Persist writes the trip's review flags in one pooled transaction, so an
// interactive read never observes a half-updated trip.
func (a *Aggregator) Persist(ctx context.Context, trip *model.Trip) error {
	return a.store.WithTx(ctx, func(tx *sql.Tx) error {
		return a.store.UpdateTripReviewTx(ctx, tx, trip)
	})
}

// Summarize rolls per-transaction review flags into batch counts. Five
// minutes of manual review per auto-approved transaction is the estimate
// the product reports as time saved.
func (a *Aggregator) Summarize(transactions []model.Transaction) ReviewSummary {
	var summary ReviewSummary
	for _, txn := range transactions {
		if txn.Confidence >= highConfidence {
			summary.HighConfidenceCount++
		}
		if txn.NeedsReview {
			summary.ReviewCount++
			continue
		}
		summary.AutoApprovedCount++
	}
	summary.EstimatedMinutesSaved = summary.AutoApprovedCount * 5
	return summary
}
