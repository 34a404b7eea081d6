package ledger

import (
	"errors"
	"fmt"
	"math"

	"paper-trading-ledger-go/internal/config"
	"paper-trading-ledger-go/internal/models"
)

var (
	// ErrNotFound is returned when no trade exists for a (symbol, date) pair.
	ErrNotFound = errors.New("trade not found")
	// ErrInvalidVolatility is returned for a zero, negative or undefined ATR.
	ErrInvalidVolatility = errors.New("invalid volatility")
	// ErrIncompleteTrade is returned when reconciling a trade that was never sized.
	ErrIncompleteTrade = errors.New("trade is missing sizing fields")
	// ErrInvalidDirection is returned for a trade type other than 1 or -1.
	ErrInvalidDirection = errors.New("trade type must be 1 (long) or -1 (short)")
	// ErrInvalidSymbol is returned for an empty or malformed ticker.
	ErrInvalidSymbol = errors.New("invalid ticker symbol")
	// ErrStorage wraps failures of the persistence layer. It is not a per-symbol error.
	ErrStorage = errors.New("ledger storage failure")
)

// Rules holds the sizing and profit parameters.
type Rules struct {
	// RiskBudget is the notional amount divided by ATR to size a position.
	RiskBudget float64
	// LimitFactor is the distance of the limit from the last close, in ATRs.
	LimitFactor float64
	// GapThreshold is the favorable opening gap, in ATRs, at or above which
	// the session's profit is not counted.
	GapThreshold float64
}

// DefaultRules returns a budget of 1000 with 0.4 ATR limit and gap threshold.
func DefaultRules() Rules {
	return Rules{RiskBudget: 1000, LimitFactor: 0.4, GapThreshold: 0.4}
}

// RulesFromConfig builds Rules from the ledger configuration.
func RulesFromConfig(cfg config.Ledger) Rules {
	return Rules{
		RiskBudget:   cfg.RiskBudget,
		LimitFactor:  cfg.LimitFactor,
		GapThreshold: cfg.GapThreshold,
	}
}

// Sizing is the result of the sizing phase.
type Sizing struct {
	Quantity int64
	Limit    float64
}

// Size computes quantity = floor(budget/atr) and limit = lastClose + tradeType*factor*atr.
// The limit lands above the last close for longs and below it for shorts.
func (r Rules) Size(tradeType int, atr, lastClose float64) (Sizing, error) {
	if !validDirection(tradeType) {
		return Sizing{}, ErrInvalidDirection
	}
	if math.IsNaN(atr) || math.IsInf(atr, 0) || atr <= 0 {
		return Sizing{}, fmt.Errorf("%w: atr=%v", ErrInvalidVolatility, atr)
	}

	return Sizing{
		Quantity: int64(math.Floor(r.RiskBudget / atr)),
		Limit:    lastClose + float64(tradeType)*r.LimitFactor*atr,
	}, nil
}

// Outcome is the result of reconciling a sized trade against a session.
type Outcome struct {
	GapInATR       float64
	Profit         float64
	ProfitOriginal float64
}

// Reconcile computes the gap-adjusted profit of t for a session that opened
// at openPrice and closed at closePrice.
func (r Rules) Reconcile(t models.Trade, openPrice, closePrice float64) (Outcome, error) {
	if !t.Sized() || *t.ATR == 0 || math.IsNaN(*t.ATR) {
		return Outcome{}, ErrIncompleteTrade
	}

	direction := float64(t.TradeType)
	gap := (openPrice - *t.LastClose) * direction
	gapInATR := gap / *t.ATR
	profitOriginal := (closePrice - openPrice) * direction * float64(*t.Quantity)

	profit := profitOriginal
	if gapInATR >= r.GapThreshold {
		profit = 0
	}

	return Outcome{
		GapInATR:       gapInATR,
		Profit:         profit,
		ProfitOriginal: profitOriginal,
	}, nil
}

func validDirection(tradeType int) bool {
	return tradeType == models.Long || tradeType == models.Short
}
