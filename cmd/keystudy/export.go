package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/keystudy/internal/adapters/repository"
	service "github.com/okian/keystudy/internal/app"
	"github.com/okian/keystudy/pkg/logger"
	"github.com/spf13/cobra"
)

const exportFilePermission = 0o600

func newExportCmd(c *cli) *cobra.Command {
	var dbPath, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the feature CSV export without starting the server",
		Long: `Write the feature CSV export without starting the server.

Examples:
  keystudy export                          # CSV of keystroke_study.db to stdout
  keystudy export --db study.db --out keystroke_data.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("db") {
				c.cfg.DBPath = dbPath
			}
			return runExport(cmd.Context(), c.cfg.DBPath, out, cmd.OutOrStdout(), c.log)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file (overrides db_path)")
	cmd.Flags().StringVarP(&out, "out", "o", "-", `output file, "-" for stdout`)
	return cmd
}

// runExport writes the CSV of the database at dbPath to out, or to stdout
// when out is "-". The database must already exist.
func runExport(ctx context.Context, dbPath, out string, stdout io.Writer, log logger.Logger) error {
	if dbPath != repository.MemoryPath {
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("database %s: %w", dbPath, err)
		}
	}

	svc := service.New(service.WithDBPath(dbPath), service.WithLogger(log.Named("service")))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	w := stdout
	if out != "-" && out != "" {
		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, exportFilePermission)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Error(ctx, "failed to close export file", logger.Error(err))
			}
		}()
		w = f
	}

	n, err := svc.ExportCSV(ctx, w)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	log.Info(ctx, "export written", logger.String("out", out), logger.Int("rows", n))
	return nil
}
