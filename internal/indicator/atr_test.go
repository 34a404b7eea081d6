package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"paper-trading-ledger-go/internal/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(day int) time.Time {
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

// sample true ranges: 2, 3, 1, 3.5
var sample = []marketdata.Bar{
	{Date: d(1), High: 10, Low: 8, Close: 9},
	{Date: d(2), High: 12, Low: 9, Close: 11},
	{Date: d(3), High: 11, Low: 10, Close: 10.5},
	{Date: d(4), High: 14, Low: 11, Close: 13},
}

func TestTrueRange(t *testing.T) {
	testCases := []struct {
		name      string
		high      float64
		low       float64
		prevClose float64
		expected  float64
	}{
		{"Inside range", 12, 9, 10, 3},
		{"Gap up", 14, 11, 10.5, 3.5},
		{"Gap down", 9, 8, 12, 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, TrueRange(tc.high, tc.low, tc.prevClose), 1e-9)
		})
	}
}

func TestTrueRanges(t *testing.T) {
	assert.Equal(t, []float64{2, 3, 1, 3.5}, TrueRanges(sample))
}

func TestATR(t *testing.T) {
	t.Run("SMA", func(t *testing.T) {
		atr, err := ATR(sample, 2, SMA)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(atr[0]))
		assert.InDeltaSlice(t, []float64{2.5, 2, 2.25}, atr[1:], 1e-9)
	})

	t.Run("SMA window 3", func(t *testing.T) {
		atr, err := ATR(sample, 3, SMA)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(atr[0]))
		assert.True(t, math.IsNaN(atr[1]))
		assert.InDeltaSlice(t, []float64{2, 2.5}, atr[2:], 1e-9)
	})

	t.Run("Wilder", func(t *testing.T) {
		atr, err := ATR(sample, 2, Wilder)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{2.5, 1.75, 2.625}, atr[1:], 1e-9)
	})

	t.Run("Window longer than series", func(t *testing.T) {
		atr, err := ATR(sample, 30, SMA)
		require.NoError(t, err)
		for _, v := range atr {
			assert.True(t, math.IsNaN(v))
		}
	})

	t.Run("Invalid window", func(t *testing.T) {
		_, err := ATR(sample, 0, SMA)
		assert.True(t, errors.Is(err, ErrInvalidWindow))
	})
}

func TestComputeVolatility(t *testing.T) {
	t.Run("Uses last bar strictly before date", func(t *testing.T) {
		v, err := ComputeVolatility(sample, d(4), 2, SMA)
		require.NoError(t, err)
		assert.True(t, v.Ready())
		assert.Equal(t, d(3), v.Date)
		assert.InDelta(t, 2.0, v.ATR, 1e-9)
		assert.Equal(t, 10.5, v.LastClose)
	})

	t.Run("Intraday cutoff still excludes that day", func(t *testing.T) {
		v, err := ComputeVolatility(sample, d(4).Add(15*time.Hour), 2, SMA)
		require.NoError(t, err)
		assert.Equal(t, d(3), v.Date)
	})

	t.Run("After the series", func(t *testing.T) {
		v, err := ComputeVolatility(sample, d(20), 2, SMA)
		require.NoError(t, err)
		assert.InDelta(t, 2.25, v.ATR, 1e-9)
		assert.Equal(t, 13.0, v.LastClose)
	})

	t.Run("Not enough history for ATR", func(t *testing.T) {
		v, err := ComputeVolatility(sample, d(2), 3, SMA)
		require.NoError(t, err)
		assert.False(t, v.Ready())
		assert.Equal(t, 9.0, v.LastClose)
	})

	t.Run("No rows before date", func(t *testing.T) {
		_, err := ComputeVolatility(sample, d(1), 2, SMA)
		assert.True(t, errors.Is(err, ErrInsufficientHistory))
	})

	t.Run("Empty series", func(t *testing.T) {
		_, err := ComputeVolatility(nil, d(5), 2, SMA)
		assert.True(t, errors.Is(err, marketdata.ErrDataUnavailable))
	})
}

func TestParseSmoothing(t *testing.T) {
	s, err := ParseSmoothing("")
	assert.NoError(t, err)
	assert.Equal(t, SMA, s)

	s, err = ParseSmoothing("wilder")
	assert.NoError(t, err)
	assert.Equal(t, Wilder, s)

	_, err = ParseSmoothing("ema")
	assert.Error(t, err)
}
