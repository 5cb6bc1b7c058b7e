// Package engine orchestrates the classification pipeline: location
// flagging, category assignment, trip grouping, confidence aggregation,
// and persistence.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/wayfare-dev/wayfare/internal/classify"
	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/config"
	"github.com/wayfare-dev/wayfare/internal/model"
	"github.com/wayfare-dev/wayfare/internal/purpose"
	"github.com/wayfare-dev/wayfare/internal/storage"
	"github.com/wayfare-dev/wayfare/internal/trips"
)

// unresolvedLocationFactor discounts the category confidence when the
// transaction's location could not be resolved. Missing location data
// degrades confidence; it never fails the pipeline.
const unresolvedLocationFactor = 0.8

// Result is the outcome of one pipeline invocation.
type Result struct {
	Trips          []model.Trip        `json:"trips"`
	Flagged        []model.Transaction `json:"flagged_transactions"`
	Summary        trips.ReviewSummary `json:"summary"`
	RuleSetVersion int                 `json:"rule_set_version"`
	Processed      int                 `json:"processed"`
	Failed         int                 `json:"failed"`
	FailedIDs      []string            `json:"failed_ids,omitempty"`
}

// Engine drives the classification pipeline over transaction batches. An
// engine pins the rule-set version it was built with, so every chunk of a
// run classifies against the same rules.
type Engine struct {
	store      *storage.Store
	locations  *classify.LocationClassifier
	categories *classify.Classifier
	grouper    *trips.Grouper
	aggregator *trips.Aggregator
	opts       config.Options
}

// New creates an engine for one rule-set version and option set. Grouping
// parameters are validated here, before any grouping runs.
func New(store *storage.Store, rules model.RuleSet, opts config.Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	grouper, err := trips.NewGrouper(opts.GapDays)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:      store,
		locations:  classify.NewLocationClassifier(opts.HomeRegion),
		categories: classify.NewClassifier(rules),
		grouper:    grouper,
		aggregator: trips.NewAggregator(store, opts.ConfidenceThreshold),
		opts:       opts,
	}, nil
}

// RuleSetVersion returns the pinned rule-set version.
func (e *Engine) RuleSetVersion() int {
	return e.categories.Version()
}

// ClassifyAndGroup runs the full pipeline synchronously over a small
// in-memory input and persists the outcome. Intended for interactive use;
// bulk reprocessing goes through Run.
func (e *Engine) ClassifyAndGroup(ctx context.Context, transactions []model.Transaction) (*Result, error) {
	if len(transactions) == 0 {
		return nil, common.ErrNoTransactions
	}

	result := &Result{RuleSetVersion: e.RuleSetVersion()}

	for i := range transactions {
		e.classifyOne(&transactions[i])
	}
	result.Processed = len(transactions)

	if err := e.store.SaveTransactions(ctx, transactions); err != nil {
		return nil, fmt.Errorf("failed to save transactions: %w", err)
	}
	if err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.store.UpdateClassificationsTx(ctx, tx, transactions)
	}); err != nil {
		return nil, fmt.Errorf("failed to persist classifications: %w", err)
	}

	grouped := e.grouper.Group(transactions)
	for i := range grouped {
		trip := &grouped[i]
		trip.BusinessPurpose = purpose.Suggest(trip)
		e.aggregator.Aggregate(trip)

		if err := e.persistTrip(ctx, trip); err != nil {
			return nil, err
		}
	}
	result.Trips = grouped

	for _, txn := range transactions {
		if txn.NeedsReview {
			result.Flagged = append(result.Flagged, txn)
		}
	}
	result.Summary = e.aggregator.Summarize(transactions)

	return result, nil
}

// Run executes the pipeline over the stored transactions selected by spec,
// in chunks of the configured batch size. Each chunk commits as one pooled
// transaction, so cooperative cancellation between chunks never leaves
// partially-committed state. report is invoked with progress in [0,100].
func (e *Engine) Run(ctx context.Context, spec model.JobSpec, report func(progress int)) (*Result, error) {
	if report == nil {
		report = func(int) {}
	}

	// Dissolve unsubmitted trips in range first so regrouping an unchanged
	// set produces an identical partition instead of duplicates. Trip links
	// that survive this belong to submitted trips.
	if err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.store.DeleteUnsubmittedTripsInRangeTx(ctx, tx, spec.StartDate, spec.EndDate)
	}); err != nil {
		return nil, fmt.Errorf("failed to reset trips in range: %w", err)
	}

	loaded, err := e.store.GetTransactionsByDateRange(ctx, spec.StartDate, spec.EndDate)
	if err != nil {
		return nil, err
	}

	// Members of submitted trips are frozen along with their trip.
	transactions := loaded[:0:0]
	for _, txn := range loaded {
		if txn.TripID == nil {
			transactions = append(transactions, txn)
		}
	}
	if skipped := len(loaded) - len(transactions); skipped > 0 {
		slog.Info("Skipping transactions on submitted trips", "count", skipped)
	}

	result := &Result{RuleSetVersion: e.RuleSetVersion()}
	if len(transactions) == 0 {
		report(100)
		return result, nil
	}

	total := len(transactions)
	processed := 0

	for start := 0; start < total; start += e.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + e.opts.BatchSize
		if end > total {
			end = total
		}
		chunk := transactions[start:end]

		for i := range chunk {
			e.classifyOne(&chunk[i])
		}

		if err := e.persistChunk(ctx, chunk, result); err != nil {
			return nil, err
		}

		processed += len(chunk)
		report(processed * 80 / total)
	}
	result.Processed = processed - result.Failed

	grouped := e.grouper.Group(transactions)
	for i := range grouped {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trip := &grouped[i]
		trip.BusinessPurpose = purpose.Suggest(trip)
		e.aggregator.Aggregate(trip)

		if err := e.persistTrip(ctx, trip); err != nil {
			common.LogError(err, "Failed to persist trip", common.Fields{
				"start_date": trip.StartDate,
				"end_date":   trip.EndDate,
			})
			continue
		}
		result.Trips = append(result.Trips, *trip)

		report(80 + (i+1)*20/len(grouped))
	}

	for _, txn := range transactions {
		if txn.NeedsReview {
			result.Flagged = append(result.Flagged, txn)
		}
	}
	result.Summary = e.aggregator.Summarize(transactions)
	report(100)

	slog.Info("Pipeline run complete",
		"processed", result.Processed,
		"failed", result.Failed,
		"trips", len(result.Trips),
		"flagged", len(result.Flagged),
		"rule_set_version", result.RuleSetVersion)

	return result, nil
}

// classifyOne runs the location and category classifiers over a single
// transaction. Any failure is caught and recorded on the transaction
// rather than aborting the batch.
func (e *Engine) classifyOne(txn *model.Transaction) {
	defer func() {
		if r := recover(); r != nil {
			common.LogError(fmt.Errorf("classification panic: %v", r),
				"Transaction classification failed", common.Fields{
					"external_id": txn.ExternalID,
				})
			txn.Category = model.CategoryUncategorized
			txn.Confidence = 0
			txn.NeedsReview = true
		}
	}()

	loc := e.locations.Classify(txn.Description, txn.RawLocation)
	txn.NormalizedLocation = loc.Normalized
	txn.LocationResolved = loc.Resolved
	txn.IsBusiness = loc.OutOfRegion

	match := e.categories.Classify(txn.Description)
	txn.Category = match.Category
	txn.Confidence = match.Confidence
	if !loc.Resolved {
		txn.Confidence *= unresolvedLocationFactor
	}
	txn.NeedsReview = txn.Confidence < e.opts.ConfidenceThreshold
}

// persistChunk commits a chunk's classifications as one transaction.
// When the chunk transaction fails it falls back to per-record commits so
// one bad record rolls back only itself; the failures are recorded in the
// result and the run continues.
func (e *Engine) persistChunk(ctx context.Context, chunk []model.Transaction, result *Result) error {
	err := e.withRetry(ctx, func() error {
		return e.store.WithTx(ctx, func(tx *sql.Tx) error {
			return e.store.UpdateClassificationsTx(ctx, tx, chunk)
		})
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	slog.Warn("Chunk commit failed, retrying records individually",
		"chunk_size", len(chunk), "error", err)

	for i := range chunk {
		txn := chunk[i : i+1]
		recordErr := e.withRetry(ctx, func() error {
			return e.store.WithTx(ctx, func(tx *sql.Tx) error {
				return e.store.UpdateClassificationsTx(ctx, tx, txn)
			})
		})
		if recordErr != nil {
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, txn[0].ExternalID)
			common.LogError(recordErr, "Failed to persist transaction", common.Fields{
				"external_id": txn[0].ExternalID,
			})
		}
	}
	return nil
}

// persistTrip commits a trip and its membership links atomically.
func (e *Engine) persistTrip(ctx context.Context, trip *model.Trip) error {
	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.store.SaveTripTx(ctx, tx, trip)
	})
}

func (e *Engine) withRetry(ctx context.Context, operation func() error) error {
	return common.WithRetry(ctx, func() error {
		if err := operation(); err != nil {
			return &common.RetryableError{Err: err, Retryable: common.IsRetryable(err)}
		}
		return nil
	}, common.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	})
}
