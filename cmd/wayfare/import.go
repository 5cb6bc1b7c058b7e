package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wayfare-dev/wayfare/internal/importer"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import transactions from a card-export CSV",
		Long: `Parse a card-export CSV file and store its expense transactions.
Re-importing the same file is safe: records are deduplicated by their
content hash.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("account", "default", "account identifier to tag imported transactions with")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	accountID, _ := cmd.Flags().GetString("account")

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer func() { _ = f.Close() }()

	transactions, err := importer.ParseCSV(f, accountID)
	if err != nil {
		return err
	}
	if len(transactions) == 0 {
		cmd.Println("No expense transactions found in file")
		return nil
	}

	store, _, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveTransactions(ctx, transactions); err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	cmd.Printf("Imported %d transactions from %s\n", len(transactions), args[0])
	return nil
}
