// Package marketdata downloads daily OHLC bars and keeps a local copy of each
// symbol's history for the volatility calculation.
package marketdata

import (
	"context"
	"errors"
	"time"
)

// ErrDataUnavailable is returned when no price data exists for a symbol.
var ErrDataUnavailable = errors.New("price data unavailable")

// Bar is one daily session.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// CacheReport lists the outcome of a best-effort download batch.
type CacheReport struct {
	Succeeded []string
	Failed    map[string]error
}

// PriceHistory is the price provider consumed by the ledger commands.
type PriceHistory interface {
	// EnsureCached downloads and stores at least days trailing sessions per symbol.
	// Per-symbol failures are collected in the report and never abort the batch.
	EnsureCached(ctx context.Context, symbols []string, days int) CacheReport
	// GetSeries returns the stored series ordered by date.
	GetSeries(symbol string) ([]Bar, error)
	// GetLatestSession returns the most recent daily bar.
	GetLatestSession(ctx context.Context, symbol string) (Bar, error)
}
