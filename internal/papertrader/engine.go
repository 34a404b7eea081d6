// Package papertrader runs the ledger's batch commands: submitting positions,
// sizing them from price history and reconciling them against a session.
package papertrader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"paper-trading-ledger-go/internal/config"
	"paper-trading-ledger-go/internal/indicator"
	"paper-trading-ledger-go/internal/ledger"
	"paper-trading-ledger-go/internal/marketdata"
	"paper-trading-ledger-go/internal/models"

	"go.uber.org/zap"
)

// ErrNoSession is returned when the latest session predates the trade date.
var ErrNoSession = errors.New("no session on or after trade date")

// Engine runs commands against a ledger store and a price provider.
// Commands are serialized so read-modify-write sequences never interleave.
type Engine struct {
	logger    *zap.Logger
	cfg       config.Ledger
	store     *ledger.Store
	prices    marketdata.PriceHistory
	smoothing indicator.Smoothing
	mu        sync.Mutex
}

// NewEngine creates a new command engine.
func NewEngine(logger *zap.Logger, cfg config.Ledger, store *ledger.Store, prices marketdata.PriceHistory) (*Engine, error) {
	smoothing, err := indicator.ParseSmoothing(cfg.ATRSmoothing)
	if err != nil {
		return nil, err
	}
	if cfg.ATRWindow <= 0 {
		cfg.ATRWindow = indicator.DefaultWindow
	}
	if cfg.HistoryDays < cfg.ATRWindow+1 {
		logger.Warn("History shorter than the ATR window, sizing will need more data",
			zap.Int("history_days", cfg.HistoryDays),
			zap.Int("atr_window", cfg.ATRWindow),
		)
	}

	return &Engine{
		logger:    logger.Named("engine"),
		cfg:       cfg,
		store:     store,
		prices:    prices,
		smoothing: smoothing,
	}, nil
}

// Store returns the ledger the engine writes to.
func (e *Engine) Store() *ledger.Store {
	return e.store
}

// SubmitPositions records long and short positions for date. Blank symbols are skipped.
func (e *Engine) SubmitPositions(ctx context.Context, date time.Time, longs, shorts []string) (*BatchReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := newBatchReport(CommandSubmit, date)
	l := e.logger.With(zap.String("batch", report.ID), zap.String("date", report.Date.Format(time.DateOnly)))
	l.Info("Submitting positions", zap.Int("longs", len(longs)), zap.Int("shorts", len(shorts)))

	submit := func(symbols []string, tradeType int) error {
		for _, raw := range symbols {
			symbol := ledger.NormalizeSymbol(raw)
			if symbol == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			trade, err := e.store.CreateOrUpdatePosition(ctx, symbol, date, tradeType)
			if err != nil {
				if errors.Is(err, ledger.ErrStorage) {
					return err
				}
				l.Warn("Failed to record position", zap.String("symbol", symbol), zap.Error(err))
				report.fail(symbol, err)
				continue
			}
			report.succeed(*trade)
		}
		return nil
	}

	if err := submit(longs, models.Long); err != nil {
		return report, err
	}
	if err := submit(shorts, models.Short); err != nil {
		return report, err
	}

	l.Info("Positions submitted", zap.Int("succeeded", len(report.Succeeded)), zap.Int("failed", len(report.Failed)))
	return report, nil
}

// RefreshAndSize downloads price history for every trade on date and applies
// the ATR-based sizing.
func (e *Engine) RefreshAndSize(ctx context.Context, date time.Time) (*BatchReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := newBatchReport(CommandRefresh, date)
	l := e.logger.With(zap.String("batch", report.ID), zap.String("date", report.Date.Format(time.DateOnly)))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	trades, err := e.store.FindByDate(ctx, date)
	if err != nil {
		return report, err
	}
	if len(trades) == 0 {
		l.Info("No trades to size")
		return report, nil
	}

	symbols := make([]string, 0, len(trades))
	for _, t := range trades {
		symbols = append(symbols, t.Symbol)
	}

	l.Info("Refreshing price history", zap.Strings("symbols", symbols), zap.Int("days", e.cfg.HistoryDays))
	cached := e.prices.EnsureCached(ctx, symbols, e.cfg.HistoryDays)

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sl := l.With(zap.String("symbol", symbol))

		// A failed download can still be served from an older copy.
		if dlErr, failed := cached.Failed[symbol]; failed {
			sl.Warn("Download failed, trying cached history", zap.Error(dlErr))
		}

		vol, err := e.volatility(symbol, date)
		if err != nil {
			if dlErr, failed := cached.Failed[symbol]; failed {
				err = errors.Join(err, dlErr)
			}
			sl.Warn("Could not compute volatility", zap.Error(err))
			report.fail(symbol, err)
			continue
		}
		if !vol.Ready() {
			err := fmt.Errorf("%w: ATR(%d) undefined as of %s, more history needed (last close %.2f)",
				ledger.ErrInvalidVolatility, e.cfg.ATRWindow, vol.Date.Format(time.DateOnly), vol.LastClose)
			sl.Warn("ATR not ready", zap.Float64("last_close", vol.LastClose), zap.Error(err))
			report.fail(symbol, err)
			continue
		}

		trade, err := e.store.ApplySizing(ctx, symbol, date, vol.ATR, vol.LastClose)
		if err != nil {
			if errors.Is(err, ledger.ErrStorage) {
				return report, err
			}
			sl.Warn("Failed to size trade", zap.Error(err))
			report.fail(symbol, err)
			continue
		}
		report.succeed(*trade)
	}

	l.Info("Sizing complete", zap.Int("succeeded", len(report.Succeeded)), zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (e *Engine) volatility(symbol string, date time.Time) (indicator.Volatility, error) {
	series, err := e.prices.GetSeries(symbol)
	if err != nil {
		return indicator.Volatility{}, err
	}
	return indicator.ComputeVolatility(series, date, e.cfg.ATRWindow, e.smoothing)
}

// Reconcile prices every trade on date against the latest session and records its profit.
func (e *Engine) Reconcile(ctx context.Context, date time.Time) (*BatchReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := newBatchReport(CommandReconcile, date)
	l := e.logger.With(zap.String("batch", report.ID), zap.String("date", report.Date.Format(time.DateOnly)))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	trades, err := e.store.FindByDate(ctx, date)
	if err != nil {
		return report, err
	}
	l.Info("Reconciling trades", zap.Int("count", len(trades)))

	for _, t := range trades {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sl := l.With(zap.String("symbol", t.Symbol))

		bar, err := e.prices.GetLatestSession(ctx, t.Symbol)
		if err != nil {
			sl.Warn("Failed to get latest session", zap.Error(err))
			report.fail(t.Symbol, err)
			continue
		}
		if bar.Date.Before(report.Date) {
			err := fmt.Errorf("%w: latest session is %s", ErrNoSession, bar.Date.Format(time.DateOnly))
			sl.Warn("Session not available yet", zap.Error(err))
			report.fail(t.Symbol, err)
			continue
		}

		trade, err := e.store.ApplyReconciliation(ctx, t.Symbol, date, bar.Open, bar.Close)
		if err != nil {
			if errors.Is(err, ledger.ErrStorage) {
				return report, err
			}
			sl.Warn("Failed to reconcile trade", zap.Error(err))
			report.fail(t.Symbol, err)
			continue
		}
		report.succeed(*trade)
	}

	l.Info("Reconciliation complete", zap.Int("succeeded", len(report.Succeeded)), zap.Int("failed", len(report.Failed)))
	return report, nil
}

// ClearAll deletes every trade in the ledger.
func (e *Engine) ClearAll(ctx context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.store.ClearAll(ctx)
}
