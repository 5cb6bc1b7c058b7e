package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wayfare-dev/wayfare/internal/config"
	"github.com/wayfare-dev/wayfare/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Migrations run automatically before every command; this command exists to
set up a database without doing anything else.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	opts := config.FromViper()
	if err := opts.Validate(); err != nil {
		return err
	}

	slog.Info("Running database migrations", "database", opts.DatabasePath)

	store, err := storage.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	cmd.Printf("Database schema at version %d\n", storage.ExpectedSchemaVersion)
	return nil
}
