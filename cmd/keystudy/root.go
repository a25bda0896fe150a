package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/okian/keystudy/internal/config"
	"github.com/okian/keystudy/pkg/logger"
	"github.com/spf13/cobra"
)

// cli carries state shared by the subcommands once the root has run.
type cli struct {
	envFile string
	cfg     *config.Config
	log     logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "keystudy",
		Short: "Keystroke dynamics study backend",
		Long: `keystudy collects keyboard events and typing features from study
participants, stores them in SQLite and exports them as CSV.

Configuration is read from defaults, the YAML file named by KEYSTUDY_CONFIG
and KEYSTUDY_* environment variables. A .env file is loaded first when present.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before configuration")

	root.AddCommand(newServeCmd(c), newExportCmd(c), newInitDBCmd(c))
	return root
}

// setup loads the environment file, configuration and logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := loadEnvFile(c.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	c.log = logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(cmd.Context(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

// loadEnvFile exports variables from path. A missing file is not an error.
// Variables already set in the process environment win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
