package main

import (
	"context"
	"fmt"

	"github.com/okian/keystudy/internal/adapters/repository"
	"github.com/okian/keystudy/pkg/logger"
	"github.com/spf13/cobra"
)

func newInitDBCmd(c *cli) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the database file and its tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("db") {
				c.cfg.DBPath = dbPath
			}
			return runInitDB(cmd.Context(), c.cfg.DBPath, c.log)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file (overrides db_path)")
	return cmd
}

// runInitDB creates the schema. Existing tables and rows are left alone.
func runInitDB(ctx context.Context, dbPath string, log logger.Logger) error {
	store, err := repository.Open(ctx, dbPath, repository.WithLogger(log.Named("store")))
	if err != nil {
		return fmt.Errorf("failed to initialize %s: %w", dbPath, err)
	}
	c, err := store.Counts(ctx)
	if closeErr := store.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to initialize %s: %w", dbPath, err)
	}
	log.Info(ctx, "database ready",
		logger.String("db_path", dbPath),
		logger.Int64("participants", c.Participants),
		logger.Int64("events", c.Events),
		logger.Int64("feature_sets", c.FeatureSets),
	)
	return nil
}
