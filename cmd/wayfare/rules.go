package main

import (
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect classification rule sets",
	}

	cmd.AddCommand(rulesShowCmd())

	return cmd
}

func rulesShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the latest classification rule set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			version, _ := cmd.Flags().GetInt("version")

			store, _, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rules, err := store.LatestRuleSet(ctx)
			if version > 0 {
				rules, err = store.GetRuleSet(ctx, version)
			}
			if err != nil {
				return err
			}

			cmd.Printf("Rule set version %d (%d rules)\n\n", rules.Version, len(rules.Rules))
			for i, rule := range rules.Rules {
				cmd.Printf("%2d. %-15s base confidence %.2f\n", i+1, rule.Category, rule.BaseConfidence)
				cmd.Printf("    keywords: %v\n", rule.Keywords)
				if len(rule.Patterns) > 0 {
					cmd.Printf("    patterns: %v\n", rule.Patterns)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("version", 0, "show a specific rule-set version instead of the latest")
	return cmd
}
