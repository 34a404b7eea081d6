package models

import "time"

const (
	// Long profits from a price rise.
	Long = 1
	// Short profits from a price fall.
	Short = -1
)

// Trade represents a paper position in the ledger.
// Pointer fields stay nil until the phase that computes them has run.
type Trade struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"not null;uniqueIndex:idx_trade_symbol_date" json:"symbol"`
	TradeDate time.Time `gorm:"not null;uniqueIndex:idx_trade_symbol_date;index" json:"trade_date"`
	TradeType int       `gorm:"not null" json:"trade_type"` // 1 = Long or -1 = Short

	// Sizing phase.
	LastClose *float64 `json:"last_close"`
	ATR       *float64 `gorm:"column:atr" json:"atr"`
	Quantity  *int64   `json:"quantity"`
	Limit     *float64 `gorm:"column:limit_price" json:"limit"`

	// Reconciliation phase.
	Open           *float64 `json:"open"`
	Close          *float64 `json:"close"`
	GapInATR       *float64 `gorm:"column:gap_in_atr" json:"gap_in_atr"`
	Profit         *float64 `json:"profit"`
	ProfitOriginal *float64 `json:"profit_original"`

	LimitTouched *bool   `json:"limit_touched"`
	Notes        *string `json:"notes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Trade) TableName() string {
	return "trades"
}

// Direction returns "long" or "short".
func (t Trade) Direction() string {
	if t.TradeType == Short {
		return "short"
	}
	return "long"
}

// Sized reports whether the sizing phase has populated the trade.
func (t Trade) Sized() bool {
	return t.LastClose != nil && t.ATR != nil && t.Quantity != nil
}

// Reconciled reports whether a profit has been recorded.
func (t Trade) Reconciled() bool {
	return t.Profit != nil
}

// DateOnly truncates t to midnight UTC of its calendar day.
// Trade dates are always stored in this form so equality lookups match.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD trade date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}
