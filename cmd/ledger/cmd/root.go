// Package cmd implements the ledger command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paper-trading-ledger-go/internal/app"
	"paper-trading-ledger-go/internal/config"
	"paper-trading-ledger-go/internal/logger"
	"paper-trading-ledger-go/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// env is the state shared by every subcommand once the root has initialized it.
type env struct {
	configDir string
	log       *zap.Logger
	app       *app.App
}

// Execute runs the ledger command line. The database and logger are released
// whether or not the command succeeds.
func Execute(ctx context.Context) error {
	e := &env{}
	return e.execute(ctx, newRootCmd(e))
}

func (e *env) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	return errors.Join(err, e.close())
}

// newRootCmd builds the ledger command tree around e.
func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledger",
		Short: "Paper-trading ledger sized by ATR",
		Long: `Ledger records hypothetical long and short positions per trading day,
sizes them from the 30-day Average True Range and later reconciles them
against the next session's open and close.

Typical day:
  ledger submit --date 2024-01-10 --long AAPL,MSFT --short TSLA
  ledger size --date 2024-01-10
  ledger reconcile --date 2024-01-10
  ledger list --date 2024-01-10`,
		SilenceUsage:      true,
		PersistentPreRunE: e.setup,
	}
	root.PersistentFlags().StringVar(&e.configDir, "config", "./configs", "directory containing config.yml")

	root.AddCommand(
		newSubmitCmd(e),
		newSizeCmd(e),
		newReconcileCmd(e),
		newClearCmd(e),
		newListCmd(e),
		newStatsCmd(e),
		newNoteCmd(e),
	)
	return root
}

func (e *env) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(e.configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	e.log, err = logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	e.app, err = app.New(&cfg, e.log)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	return nil
}

func (e *env) close() error {
	if e.log != nil {
		_ = e.log.Sync()
	}
	if e.app != nil {
		return e.app.Close()
	}
	return nil
}

// parseDate parses a YYYY-MM-DD flag value; empty means today.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return models.DateOnly(time.Now()), nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}
