package cmd

import (
	"errors"
	"fmt"
	"strings"

	"paper-trading-ledger-go/internal/models"
	"paper-trading-ledger-go/internal/report"

	"github.com/spf13/cobra"
)

func newListCmd(e *env) *cobra.Command {
	var symbol, date, view string

	c := &cobra.Command{
		Use:   "list",
		Short: "List trades, optionally for one symbol or one date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			columns, err := columnsFor(view)
			if err != nil {
				return err
			}

			store := e.app.Engine.Store()
			var trades []models.Trade
			switch {
			case symbol != "":
				trades, err = store.FindBySymbol(cmd.Context(), symbol)
			case date != "":
				d, perr := models.ParseDate(date)
				if perr != nil {
					return fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
				}
				trades, err = store.FindByDate(cmd.Context(), d)
			default:
				trades, err = store.ListAllOrderedByDate(cmd.Context())
			}
			if err != nil {
				return err
			}
			return report.WriteTable(cmd.OutOrStdout(), trades, columns)
		},
	}
	c.Flags().StringVar(&symbol, "symbol", "", "only trades for this symbol")
	c.Flags().StringVar(&date, "date", "", "only trades entered on this date (YYYY-MM-DD)")
	c.Flags().StringVar(&view, "view", "all", "columns to show: sizing, profit or all")
	c.MarkFlagsMutuallyExclusive("symbol", "date")
	return c
}

func columnsFor(view string) ([]report.Column, error) {
	switch strings.ToLower(view) {
	case "sizing":
		return report.SizingColumns, nil
	case "profit":
		return report.ProfitColumns, nil
	case "all", "":
		return report.AllColumns, nil
	}
	return nil, fmt.Errorf("unknown view %q", view)
}

func newStatsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize reconciled profit across the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			trades, err := e.app.Engine.Store().ListAllOrderedByDate(cmd.Context())
			if err != nil {
				return err
			}
			return report.WriteSummary(cmd.OutOrStdout(), report.Summarize(trades))
		},
	}
}

func newNoteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "note <symbol> <YYYY-MM-DD> <text>",
		Short: "Attach a free-text note to a trade",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := models.ParseDate(args[1])
			if err != nil {
				return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[1])
			}
			text := strings.Join(args[2:], " ")
			if strings.TrimSpace(text) == "" {
				return errors.New("note text must not be empty")
			}

			trade, err := e.app.Engine.Store().SetNotes(cmd.Context(), args[0], d, text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "noted %s %s\n", trade.Symbol, trade.TradeDate.Format("2006-01-02"))
			return nil
		},
	}
}
