// Package indicator computes the Average True Range used to size positions.
package indicator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"paper-trading-ledger-go/internal/marketdata"
)

// DefaultWindow is the ATR period used when none is configured.
const DefaultWindow = 30

var (
	// ErrInsufficientHistory is returned when no bar precedes the cutoff date.
	ErrInsufficientHistory = errors.New("insufficient price history")
	// ErrInvalidWindow is returned for a non-positive ATR period.
	ErrInvalidWindow = errors.New("invalid ATR window")
)

// Smoothing selects how true ranges are averaged.
type Smoothing string

const (
	// SMA is a simple rolling mean over the window.
	SMA Smoothing = "sma"
	// Wilder seeds with the simple mean of the first window, then applies
	// (prev*(n-1) + tr) / n.
	Wilder Smoothing = "wilder"
)

// ParseSmoothing maps a config value to a Smoothing, defaulting to SMA.
func ParseSmoothing(s string) (Smoothing, error) {
	switch Smoothing(s) {
	case "", SMA:
		return SMA, nil
	case Wilder:
		return Wilder, nil
	}
	return "", fmt.Errorf("unknown ATR smoothing %q", s)
}

// Volatility is the ATR and last close as of a cutoff date.
type Volatility struct {
	Date      time.Time
	ATR       float64 // NaN when the window is not yet filled
	LastClose float64
}

// Ready reports whether ATR is defined.
func (v Volatility) Ready() bool {
	return !math.IsNaN(v.ATR)
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// TrueRanges returns the true range of every bar. The first bar has no
// previous close and uses high-low.
func TrueRanges(bars []marketdata.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			out[i] = b.High - b.Low
			continue
		}
		out[i] = TrueRange(b.High, b.Low, bars[i-1].Close)
	}
	return out
}

// ATR returns the rolling average true range for every bar. The first
// window-1 values are NaN.
func ATR(bars []marketdata.Bar, window int, smoothing Smoothing) ([]float64, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, window)
	}

	tr := TrueRanges(bars)
	out := make([]float64, len(tr))
	sum := 0.0
	for i := range tr {
		sum += tr[i]
		switch {
		case i < window-1:
			out[i] = math.NaN()
		case i == window-1:
			out[i] = sum / float64(window)
		case smoothing == Wilder:
			out[i] = (out[i-1]*float64(window-1) + tr[i]) / float64(window)
		default:
			sum -= tr[i-window]
			out[i] = sum / float64(window)
		}
	}
	return out, nil
}

// ComputeVolatility returns the ATR and close of the last bar strictly before asOf.
// bars must be ordered by date. A Volatility that is not Ready still carries a
// usable LastClose; more history is needed before the ATR can be used.
func ComputeVolatility(bars []marketdata.Bar, asOf time.Time, window int, smoothing Smoothing) (Volatility, error) {
	if len(bars) == 0 {
		return Volatility{}, marketdata.ErrDataUnavailable
	}

	atr, err := ATR(bars, window, smoothing)
	if err != nil {
		return Volatility{}, err
	}

	cutoff := dateOnly(asOf)
	idx := -1
	for i, b := range bars {
		if !dateOnly(b.Date).Before(cutoff) {
			break
		}
		idx = i
	}
	if idx < 0 {
		return Volatility{}, fmt.Errorf("%w: no data before %s", ErrInsufficientHistory, cutoff.Format(time.DateOnly))
	}

	return Volatility{
		Date:      bars[idx].Date,
		ATR:       atr[idx],
		LastClose: bars[idx].Close,
	}, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
