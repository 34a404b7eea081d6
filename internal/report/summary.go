// Package report renders ledger contents for people.
package report

import (
	"paper-trading-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Summary holds aggregate statistics over a set of trades.
type Summary struct {
	TotalTrades         int64   `json:"total_trades"`
	ReconciledTrades    int64   `json:"reconciled_trades"`
	ProfitableTrades    int64   `json:"profitable_trades"`
	WinRate             float64 `json:"win_rate"`
	TotalProfit         float64 `json:"total_profit"`
	TotalProfitOriginal float64 `json:"total_profit_original"`
}

// Summarize sums profit over the reconciled trades. TotalProfit honours the
// gap rule; TotalProfitOriginal is reported for comparison only.
func Summarize(trades []models.Trade) Summary {
	var s Summary
	profit := decimal.Zero
	original := decimal.Zero

	for _, t := range trades {
		s.TotalTrades++
		if !t.Reconciled() {
			continue
		}
		s.ReconciledTrades++
		if *t.Profit > 0 {
			s.ProfitableTrades++
		}
		profit = profit.Add(decimal.NewFromFloat(*t.Profit))
		if t.ProfitOriginal != nil {
			original = original.Add(decimal.NewFromFloat(*t.ProfitOriginal))
		}
	}

	if s.ReconciledTrades > 0 {
		s.WinRate = float64(s.ProfitableTrades) / float64(s.ReconciledTrades)
	}
	s.TotalProfit = profit.InexactFloat64()
	s.TotalProfitOriginal = original.InexactFloat64()
	return s
}
