package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"paper-trading-ledger-go/internal/models"
)

// Column renders one field of a trade.
type Column struct {
	Name  string
	Value func(models.Trade) string
}

func float(p *float64, prec int) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', prec, 64)
}

func integer(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}

func text(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

var (
	colSymbol         = Column{"SYMBOL", func(t models.Trade) string { return t.Symbol }}
	colDate           = Column{"DATE", func(t models.Trade) string { return t.TradeDate.Format(time.DateOnly) }}
	colDirection      = Column{"DIRECTION", func(t models.Trade) string { return t.Direction() }}
	colLastClose      = Column{"LAST_CLOSE", func(t models.Trade) string { return float(t.LastClose, 2) }}
	colATR            = Column{"ATR", func(t models.Trade) string { return float(t.ATR, 4) }}
	colQuantity       = Column{"QTY", func(t models.Trade) string { return integer(t.Quantity) }}
	colLimit          = Column{"LIMIT", func(t models.Trade) string { return float(t.Limit, 2) }}
	colOpen           = Column{"OPEN", func(t models.Trade) string { return float(t.Open, 2) }}
	colClose          = Column{"CLOSE", func(t models.Trade) string { return float(t.Close, 2) }}
	colGap            = Column{"GAP_ATR", func(t models.Trade) string { return float(t.GapInATR, 3) }}
	colProfit         = Column{"PROFIT", func(t models.Trade) string { return float(t.Profit, 2) }}
	colProfitOriginal = Column{"PROFIT_ORIG", func(t models.Trade) string { return float(t.ProfitOriginal, 2) }}
	colNotes          = Column{"NOTES", func(t models.Trade) string { return text(t.Notes) }}
)

// SizingColumns shows the entry and sizing fields.
var SizingColumns = []Column{colSymbol, colDate, colDirection, colLastClose, colATR, colQuantity, colLimit}

// ProfitColumns shows the reconciliation results.
var ProfitColumns = []Column{colSymbol, colDate, colDirection, colQuantity, colProfit, colProfitOriginal, colGap}

// AllColumns shows every stored field.
var AllColumns = []Column{colSymbol, colDate, colDirection, colLastClose, colATR, colQuantity, colLimit,
	colOpen, colClose, colGap, colProfit, colProfitOriginal, colNotes}

// WriteTable writes trades as an aligned table. Unset fields are blank.
func WriteTable(w io.Writer, trades []models.Trade, columns []Column) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))

	row := make([]string, len(columns))
	for _, t := range trades {
		for i, c := range columns {
			row[i] = c.Value(t)
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// WriteSummary writes s as aligned key/value lines.
func WriteSummary(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "trades\t%d\n", s.TotalTrades)
	fmt.Fprintf(tw, "reconciled\t%d\n", s.ReconciledTrades)
	fmt.Fprintf(tw, "profitable\t%d\n", s.ProfitableTrades)
	fmt.Fprintf(tw, "win rate\t%.1f%%\n", s.WinRate*100)
	fmt.Fprintf(tw, "profit\t%.2f\n", s.TotalProfit)
	fmt.Fprintf(tw, "profit (no gap rule)\t%.2f\n", s.TotalProfitOriginal)
	return tw.Flush()
}
