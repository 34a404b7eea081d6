package cmd

import (
	"errors"
	"fmt"
	"io"

	"paper-trading-ledger-go/internal/papertrader"
	"paper-trading-ledger-go/internal/report"

	"github.com/spf13/cobra"
)

func newSubmitCmd(e *env) *cobra.Command {
	var date, longs, shorts string

	c := &cobra.Command{
		Use:   "submit",
		Short: "Record long and short positions for a trade date",
		Long: `Record positions for a trade date. Submitting a symbol again for the same
date only changes its direction; sizing and results are kept.

Example:
  ledger submit --date 2024-01-10 --long AAPL,MSFT --short TSLA`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate(date)
			if err != nil {
				return err
			}
			l, s := papertrader.ParseSymbols(longs), papertrader.ParseSymbols(shorts)
			if len(l) == 0 && len(s) == 0 {
				return errors.New("no symbols given, use --long and/or --short")
			}

			batch, err := e.app.Engine.SubmitPositions(cmd.Context(), d, l, s)
			return printBatch(cmd.OutOrStdout(), batch, report.SizingColumns, err)
		},
	}
	c.Flags().StringVar(&date, "date", "", "trade date YYYY-MM-DD (default today)")
	c.Flags().StringVar(&longs, "long", "", "comma-separated symbols to buy")
	c.Flags().StringVar(&shorts, "short", "", "comma-separated symbols to sell short")
	return c
}

func newSizeCmd(e *env) *cobra.Command {
	var date string

	c := &cobra.Command{
		Use:   "size",
		Short: "Download price history and size every trade on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate(date)
			if err != nil {
				return err
			}
			batch, err := e.app.Engine.RefreshAndSize(cmd.Context(), d)
			return printBatch(cmd.OutOrStdout(), batch, report.SizingColumns, err)
		},
	}
	c.Flags().StringVar(&date, "date", "", "trade date YYYY-MM-DD (default today)")
	return c
}

func newReconcileCmd(e *env) *cobra.Command {
	var date string

	c := &cobra.Command{
		Use:   "reconcile",
		Short: "Price every trade on a date against the latest session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate(date)
			if err != nil {
				return err
			}
			batch, err := e.app.Engine.Reconcile(cmd.Context(), d)
			return printBatch(cmd.OutOrStdout(), batch, report.ProfitColumns, err)
		},
	}
	c.Flags().StringVar(&date, "date", "", "trade date YYYY-MM-DD (default today)")
	return c
}

func newClearCmd(e *env) *cobra.Command {
	var yes bool

	c := &cobra.Command{
		Use:   "clear",
		Short: "Delete every trade in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("clear deletes every trade permanently, pass --yes to confirm")
			}
			n, err := e.app.Engine.ClearAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d trades\n", n)
			return nil
		},
	}
	c.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return c
}

// printBatch writes the batch summary, its per-symbol failures and the touched trades.
// A batch error (storage failure or cancellation) is returned after whatever completed is shown.
func printBatch(w io.Writer, batch *papertrader.BatchReport, columns []report.Column, batchErr error) error {
	if batch != nil {
		fmt.Fprintln(w, batch.String())
		for _, s := range batch.FailedSymbols() {
			fmt.Fprintf(w, "  %s: %v\n", s, batch.Failed[s])
		}
		if len(batch.Trades) > 0 {
			fmt.Fprintln(w)
			if err := report.WriteTable(w, batch.Trades, columns); err != nil {
				return err
			}
		}
	}
	return batchErr
}
