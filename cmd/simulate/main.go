// Command simulate drives a running keystudy server with synthetic participants.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/keystudy/internal/simulate"
	"github.com/okian/keystudy/pkg/logger"
	"github.com/spf13/cobra"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &simulate.Config{}
	var (
		runTimeout time.Duration
		logFormat  string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Submit synthetic typing sessions to a keystudy server",
		Long: `Submit synthetic typing sessions to a keystudy server.

Each participant types the relaxed and the stressed passage. Keystrokes and
the features computed from them are posted through the public API, then the
CSV export is checked for the expected number of new rows.

Examples:
  simulate --participants 100 --workers 8
  simulate --url http://localhost:8080 --replay --output sessions.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithFormat(logFormat), logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			if verbose {
				_ = logger.SetLevelString("debug")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()

			_, err := simulate.Run(ctx, cfg)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", simulate.DefaultBaseURL, "base URL of the service")
	f.IntVarP(&cfg.Participants, "participants", "n", simulate.DefaultParticipants, "number of synthetic participants")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "number of concurrent workers")
	f.DurationVar(&cfg.Timeout, "timeout", simulate.DefaultTimeout, "HTTP request timeout")
	f.Uint64Var(&cfg.Seed, "seed", 0, "random seed, 0 picks one")
	f.IntVar(&cfg.MaxChars, "max-chars", 0, "type at most this many characters per passage")
	f.BoolVar(&cfg.Replay, "replay", false, "resend every write to check idempotency")
	f.StringVarP(&cfg.OutputFile, "output", "o", "", "write generated sessions to this JSON file")
	f.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "abort the whole run after this long")
	f.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	f.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}
