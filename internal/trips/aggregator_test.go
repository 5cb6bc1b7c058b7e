package trips

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfare-dev/wayfare/internal/model"
	"github.com/wayfare-dev/wayfare/internal/testutil"
)

func confTxn(amount, confidence float64, needsReview bool) model.Transaction {
	return model.Transaction{
		Amount:      decimal.NewFromFloat(amount),
		Confidence:  confidence,
		NeedsReview: needsReview,
	}
}

func TestTripConfidenceIsAmountWeighted(t *testing.T) {
	trip := &model.Trip{
		Transactions: []model.Transaction{
			confTxn(700, 0.9, false),
			confTxn(100, 0.3, false),
		},
	}

	// (0.9*700 + 0.3*100) / 800 = 0.825; the big charge dominates.
	assert.InDelta(t, 0.825, TripConfidence(trip), 1e-9)
}

func TestTripConfidenceZeroAmountsFallBackToMean(t *testing.T) {
	trip := &model.Trip{
		Transactions: []model.Transaction{
			confTxn(0, 0.8, false),
			confTxn(0, 0.4, false),
		},
	}
	assert.InDelta(t, 0.6, TripConfidence(trip), 1e-9)

	assert.Zero(t, TripConfidence(&model.Trip{}), "an empty trip has no confidence")
}

func TestAggregateSetsReviewFlagAndStatus(t *testing.T) {
	agg := NewAggregator(nil, 0.7)

	tests := []struct {
		name       string
		trip       *model.Trip
		wantReview bool
		wantStatus model.TripStatus
	}{
		{
			name: "confident trip is ready",
			trip: &model.Trip{
				Status: model.TripStatusDraft,
				Transactions: []model.Transaction{
					confTxn(700, 0.9, false),
					confTxn(100, 0.3, false),
				},
			},
			wantReview: false,
			wantStatus: model.TripStatusReady,
		},
		{
			name: "below threshold needs review",
			trip: &model.Trip{
				Status: model.TripStatusDraft,
				Transactions: []model.Transaction{
					confTxn(100, 0.5, false),
				},
			},
			wantReview: true,
			wantStatus: model.TripStatusNeedsReview,
		},
		{
			name: "flagged member forces review even when confident",
			trip: &model.Trip{
				Status: model.TripStatusDraft,
				Transactions: []model.Transaction{
					confTxn(500, 0.95, false),
					confTxn(10, 0.95, true),
				},
			},
			wantReview: true,
			wantStatus: model.TripStatusNeedsReview,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg.Aggregate(tt.trip)
			assert.Equal(t, tt.wantReview, tt.trip.NeedsReview)
			assert.Equal(t, tt.wantStatus, tt.trip.Status)
		})
	}
}

func TestAggregateLeavesSubmittedStatus(t *testing.T) {
	agg := NewAggregator(nil, 0.7)

	trip := &model.Trip{
		Status: model.TripStatusSubmitted,
		Transactions: []model.Transaction{
			confTxn(100, 0.2, true),
		},
	}
	agg.Aggregate(trip)

	assert.True(t, trip.NeedsReview)
	assert.Equal(t, model.TripStatusSubmitted, trip.Status, "submitted trips keep their status")
}

func TestSummarize(t *testing.T) {
	agg := NewAggregator(nil, 0.7)

	txns := []model.Transaction{
		confTxn(100, 0.95, false), // high confidence, auto-approved
		confTxn(100, 0.80, false), // auto-approved
		confTxn(100, 0.50, true),  // review
		confTxn(100, 0.92, true),  // high confidence but still flagged
	}

	summary := agg.Summarize(txns)
	assert.Equal(t, 2, summary.HighConfidenceCount)
	assert.Equal(t, 2, summary.ReviewCount)
	assert.Equal(t, 2, summary.AutoApprovedCount)
	assert.Equal(t, 10, summary.EstimatedMinutesSaved)
}

func TestAggregatorPersistWritesReviewFlags(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	trip := &model.Trip{
		StartDate:        time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC),
		DominantLocation: "SEATTLE WA",
		Status:           model.TripStatusReady,
		Confidence:       0.95,
	}
	require.NoError(t, store.WithTx(ctx, func(tx *sql.Tx) error {
		return store.SaveTripTx(ctx, tx, trip)
	}))

	// Re-aggregating against the member confidences flips the stored flags.
	agg := NewAggregator(store, 0.7)
	trip.Transactions = []model.Transaction{confTxn(100, 0.4, false)}
	agg.Aggregate(trip)
	require.NoError(t, agg.Persist(ctx, trip))

	reloaded, err := store.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, reloaded.Confidence, 1e-9)
	assert.True(t, reloaded.NeedsReview)
	assert.Equal(t, model.TripStatusNeedsReview, reloaded.Status)
}
