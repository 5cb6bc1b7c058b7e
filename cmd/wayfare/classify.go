package main

import (
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify stored transactions and group them into trips",
		Long: `Run the classification pipeline over stored transactions: resolve
locations, assign expense categories, group out-of-region spending into
trips, and suggest business purposes.

Reprocessing a range dissolves its unsubmitted trips and rebuilds them;
submitted trips are never modified.`,
		RunE: runClassify,
	}

	addDateRangeFlags(cmd)

	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	spec, err := dateRangeSpec(cmd, "classify")
	if err != nil {
		return err
	}

	store, opts, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := buildEngine(ctx, store, opts)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Classifying"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	result, err := eng.Run(ctx, spec, func(progress int) {
		_ = bar.Set(progress)
	})
	if err != nil {
		return err
	}
	_ = bar.Finish()

	printRunSummary(cmd, result)
	return nil
}
