package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
	"github.com/wayfare-dev/wayfare/internal/trips"
)

func tripsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trips",
		Short: "Inspect detected trips",
	}

	cmd.AddCommand(tripsListCmd())
	cmd.AddCommand(tripsShowCmd())
	cmd.AddCommand(tripsReviewCmd())

	return cmd
}

func tripsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all trips",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, _, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			all, err := store.ListTrips(ctx)
			if err != nil {
				return err
			}
			if len(all) == 0 {
				cmd.Println("No trips found")
				return nil
			}

			for _, trip := range all {
				printTripLine(cmd, trip)
			}
			return nil
		},
	}
}

func tripsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a trip with its member transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return common.NewUserError("Trip id must be a number", err)
			}

			store, _, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			trip, err := store.GetTrip(ctx, id)
			if err != nil {
				return err
			}

			printTripLine(cmd, *trip)
			cmd.Printf("  Purpose: %s\n", trip.BusinessPurpose)
			for category, total := range trip.CategoryTotals {
				cmd.Printf("  %-15s $%s\n", category, total.StringFixed(2))
			}
			cmd.Println("  Transactions:")
			for _, txn := range trip.Transactions {
				cmd.Printf("    %s  %-12s $%8s  %.2f  %s\n",
					txn.Date.Format("2006-01-02"),
					txn.Category,
					txn.Amount.StringFixed(2),
					txn.Confidence,
					txn.Description)
			}
			return nil
		},
	}
}

func tripsReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Re-evaluate trip review flags against the configured confidence threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, opts, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			agg := trips.NewAggregator(store, opts.ConfidenceThreshold)

			all, err := store.ListTrips(ctx)
			if err != nil {
				return err
			}

			updated := 0
			for _, summary := range all {
				if summary.Status == model.TripStatusSubmitted {
					continue
				}

				trip, err := store.GetTrip(ctx, summary.ID)
				if err != nil {
					return err
				}

				agg.Aggregate(trip)
				if err := agg.Persist(ctx, trip); err != nil {
					return err
				}
				updated++
			}

			cmd.Printf("Re-evaluated %d trips (threshold %.2f)\n", updated, opts.ConfidenceThreshold)
			return nil
		},
	}
}

func printTripLine(cmd *cobra.Command, trip model.Trip) {
	review := ""
	if trip.NeedsReview {
		review = "  [needs review]"
	}
	cmd.Printf("#%d  %s to %s  %-15s $%s  %.2f  %s%s\n",
		trip.ID,
		trip.StartDate.Format("2006-01-02"),
		trip.EndDate.Format("2006-01-02"),
		trip.DominantLocation,
		trip.TotalAmount.StringFixed(2),
		trip.Confidence,
		trip.Status,
		review)
}
