package papertrader

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"paper-trading-ledger-go/internal/models"

	"github.com/google/uuid"
)

// Command names a batch operation.
type Command string

const (
	CommandSubmit    Command = "submit"
	CommandRefresh   Command = "refresh"
	CommandReconcile Command = "reconcile"
)

// BatchReport collects the per-symbol outcome of a command.
type BatchReport struct {
	ID        string
	Command   Command
	Date      time.Time
	Succeeded []string
	Failed    map[string]error
	Trades    []models.Trade
}

func newBatchReport(cmd Command, date time.Time) *BatchReport {
	return &BatchReport{
		ID:      uuid.NewString(),
		Command: cmd,
		Date:    models.DateOnly(date),
		Failed:  make(map[string]error),
	}
}

func (r *BatchReport) succeed(t models.Trade) {
	r.Succeeded = append(r.Succeeded, t.Symbol)
	r.Trades = append(r.Trades, t)
}

func (r *BatchReport) fail(symbol string, err error) {
	r.Failed[symbol] = err
}

// FailedSymbols returns the failed symbols in sorted order.
func (r *BatchReport) FailedSymbols() []string {
	out := make([]string, 0, len(r.Failed))
	for s := range r.Failed {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Err joins the per-symbol failures, or returns nil if there were none.
func (r *BatchReport) Err() error {
	var errs []error
	for _, s := range r.FailedSymbols() {
		errs = append(errs, fmt.Errorf("%s: %w", s, r.Failed[s]))
	}
	return errors.Join(errs...)
}

// String summarizes the batch in one line.
func (r *BatchReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d succeeded, %d failed", r.Command, r.Date.Format(time.DateOnly), len(r.Succeeded), len(r.Failed))
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(r.FailedSymbols(), ", "))
	}
	return b.String()
}
