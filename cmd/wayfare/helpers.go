package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wayfare-dev/wayfare/internal/classify"
	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/config"
	"github.com/wayfare-dev/wayfare/internal/engine"
	"github.com/wayfare-dev/wayfare/internal/model"
	"github.com/wayfare-dev/wayfare/internal/storage"
)

// initStore opens the configured database, runs migrations, and seeds the
// built-in rule set on first use.
func initStore(ctx context.Context) (*storage.Store, config.Options, error) {
	opts := config.FromViper()
	if err := opts.Validate(); err != nil {
		return nil, opts, err
	}

	store, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, opts, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, opts, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := store.SaveRuleSet(ctx, classify.DefaultRuleSet()); err != nil {
		_ = store.Close()
		return nil, opts, fmt.Errorf("failed to seed rule set: %w", err)
	}

	return store, opts, nil
}

// buildEngine constructs a pipeline engine pinned to the latest stored
// rule-set version.
func buildEngine(ctx context.Context, store *storage.Store, opts config.Options) (*engine.Engine, error) {
	rules, err := store.LatestRuleSet(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			fallback := classify.DefaultRuleSet()
			rules = &fallback
		} else {
			return nil, err
		}
	}
	return engine.New(store, *rules, opts)
}

// dateRangeSpec reads the --from/--to flags into a job spec. Dates use
// YYYY-MM-DD; either bound may be omitted.
func dateRangeSpec(cmd *cobra.Command, kind string) (model.JobSpec, error) {
	spec := model.JobSpec{Kind: kind}

	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return spec, common.NewUserError("Invalid --from date, expected YYYY-MM-DD", err)
		}
		spec.StartDate = &t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return spec, common.NewUserError("Invalid --to date, expected YYYY-MM-DD", err)
		}
		// Inclusive end of day.
		t = t.Add(24*time.Hour - time.Nanosecond)
		spec.EndDate = &t
	}
	if spec.StartDate != nil && spec.EndDate != nil && spec.EndDate.Before(*spec.StartDate) {
		return spec, common.NewUserError("--to must not be before --from", nil)
	}

	return spec, nil
}

func addDateRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "start date (YYYY-MM-DD, inclusive)")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD, inclusive)")
}

// printRunSummary reports pipeline results on stdout.
func printRunSummary(cmd *cobra.Command, result *engine.Result) {
	cmd.Printf("Processed %d transactions (%d failed)\n", result.Processed, result.Failed)
	cmd.Printf("Trips detected: %d\n", len(result.Trips))
	cmd.Printf("Flagged for review: %d\n", len(result.Flagged))
	cmd.Printf("Auto-approved: %d (≈%d minutes of manual review saved)\n",
		result.Summary.AutoApprovedCount, result.Summary.EstimatedMinutesSaved)
	cmd.Printf("Rule set version: %d\n", result.RuleSetVersion)
}
