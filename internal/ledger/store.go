// Package ledger persists paper trades and applies the sizing and profit rules.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"paper-trading-ledger-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the trade ledger. Every operation runs in its own transaction.
type Store struct {
	db     *gorm.DB
	rules  Rules
	logger *zap.Logger
}

// NewStore creates a Store on db.
func NewStore(db *gorm.DB, rules Rules, logger *zap.Logger) *Store {
	return &Store{db: db, rules: rules, logger: logger.Named("ledger")}
}

// inTx runs fn in a transaction that is committed if fn returns nil and rolled back otherwise.
// Begin and commit failures are reported as ErrStorage.
func (s *Store) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(tx)
		return fnErr
	})
	if err != nil && fnErr == nil {
		return storageErr("transaction", err)
	}
	return err
}

// tickerPattern accepts exchange tickers such as AAPL, BRK.B or BF-B.
var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,14}$`)

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidSymbol reports whether a normalized symbol is a well-formed ticker.
func ValidSymbol(symbol string) bool {
	return tickerPattern.MatchString(symbol)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func findTrade(tx *gorm.DB, symbol string, date time.Time) (*models.Trade, error) {
	var trade models.Trade
	err := tx.Where("symbol = ? AND trade_date = ?", symbol, date).First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, symbol, date.Format(time.DateOnly))
	}
	if err != nil {
		return nil, storageErr("find trade", err)
	}
	return &trade, nil
}

// CreateOrUpdatePosition records a position for (symbol, date). An existing
// trade only has its direction replaced; computed fields are kept.
func (s *Store) CreateOrUpdatePosition(ctx context.Context, symbol string, date time.Time, tradeType int) (*models.Trade, error) {
	symbol = NormalizeSymbol(symbol)
	if !ValidSymbol(symbol) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	if !validDirection(tradeType) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDirection, tradeType)
	}
	date = models.DateOnly(date)

	var trade *models.Trade
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		row := models.Trade{Symbol: symbol, TradeDate: date, TradeType: tradeType}
		// Uniqueness is enforced by idx_trade_symbol_date (symbol, trade_date).
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "trade_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"trade_type", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return storageErr("upsert trade", err)
		}

		trade, err = findTrade(tx, symbol, date)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Position recorded",
		zap.String("symbol", symbol),
		zap.String("date", date.Format(time.DateOnly)),
		zap.String("direction", trade.Direction()),
	)
	return trade, nil
}

// ApplySizing stores the volatility inputs and the derived quantity and limit.
func (s *Store) ApplySizing(ctx context.Context, symbol string, date time.Time, atr, lastClose float64) (*models.Trade, error) {
	symbol = NormalizeSymbol(symbol)
	date = models.DateOnly(date)

	var trade *models.Trade
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		if trade, err = findTrade(tx, symbol, date); err != nil {
			return err
		}

		sizing, err := s.rules.Size(trade.TradeType, atr, lastClose)
		if err != nil {
			return err
		}

		trade.ATR = &atr
		trade.LastClose = &lastClose
		trade.Quantity = &sizing.Quantity
		trade.Limit = &sizing.Limit
		if err := tx.Save(trade).Error; err != nil {
			return storageErr("save sizing", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Trade sized",
		zap.String("symbol", symbol),
		zap.Float64("atr", atr),
		zap.Float64("last_close", lastClose),
		zap.Int64("quantity", *trade.Quantity),
		zap.Float64("limit", *trade.Limit),
	)
	return trade, nil
}

// ApplyReconciliation stores the session prices and the resulting profit.
func (s *Store) ApplyReconciliation(ctx context.Context, symbol string, date time.Time, openPrice, closePrice float64) (*models.Trade, error) {
	symbol = NormalizeSymbol(symbol)
	date = models.DateOnly(date)

	var trade *models.Trade
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		if trade, err = findTrade(tx, symbol, date); err != nil {
			return err
		}

		outcome, err := s.rules.Reconcile(*trade, openPrice, closePrice)
		if err != nil {
			return fmt.Errorf("%s on %s: %w", symbol, date.Format(time.DateOnly), err)
		}

		trade.Open = &openPrice
		trade.Close = &closePrice
		trade.GapInATR = &outcome.GapInATR
		trade.Profit = &outcome.Profit
		trade.ProfitOriginal = &outcome.ProfitOriginal
		if err := tx.Save(trade).Error; err != nil {
			return storageErr("save reconciliation", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Trade reconciled",
		zap.String("symbol", symbol),
		zap.Float64("gap_in_atr", *trade.GapInATR),
		zap.Float64("profit", *trade.Profit),
		zap.Float64("profit_original", *trade.ProfitOriginal),
	)
	return trade, nil
}

// SetNotes replaces the free-text annotation of a trade.
func (s *Store) SetNotes(ctx context.Context, symbol string, date time.Time, notes string) (*models.Trade, error) {
	symbol = NormalizeSymbol(symbol)
	date = models.DateOnly(date)

	var trade *models.Trade
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		if trade, err = findTrade(tx, symbol, date); err != nil {
			return err
		}
		trade.Notes = &notes
		if err := tx.Save(trade).Error; err != nil {
			return storageErr("save notes", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// Get returns the trade for (symbol, date) or ErrNotFound.
func (s *Store) Get(ctx context.Context, symbol string, date time.Time) (*models.Trade, error) {
	return findTrade(s.db.WithContext(ctx), NormalizeSymbol(symbol), models.DateOnly(date))
}

// FindBySymbol returns every trade for symbol ordered by date.
func (s *Store) FindBySymbol(ctx context.Context, symbol string) ([]models.Trade, error) {
	trades := []models.Trade{}
	err := s.db.WithContext(ctx).
		Where("symbol = ?", NormalizeSymbol(symbol)).
		Order("trade_date").
		Find(&trades).Error
	if err != nil {
		return nil, storageErr("find by symbol", err)
	}
	return trades, nil
}

// FindByDate returns every trade entered on date ordered by symbol.
func (s *Store) FindByDate(ctx context.Context, date time.Time) ([]models.Trade, error) {
	trades := []models.Trade{}
	err := s.db.WithContext(ctx).
		Where("trade_date = ?", models.DateOnly(date)).
		Order("symbol").
		Find(&trades).Error
	if err != nil {
		return nil, storageErr("find by date", err)
	}
	return trades, nil
}

// ListAllOrderedByDate returns every trade ordered by date, then symbol.
func (s *Store) ListAllOrderedByDate(ctx context.Context) ([]models.Trade, error) {
	trades := []models.Trade{}
	if err := s.db.WithContext(ctx).Order("trade_date").Order("symbol").Find(&trades).Error; err != nil {
		return nil, storageErr("list trades", err)
	}
	return trades, nil
}

// ClearAll permanently deletes every trade and returns how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Trade{})
		if res.Error != nil {
			return storageErr("delete trades", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Warn("All trades deleted", zap.Int64("count", deleted))
	return deleted, nil
}
