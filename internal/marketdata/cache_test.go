package marketdata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestSeriesCache_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	bars := []Bar{
		{Date: day(2), Open: 187.15, High: 188.44, Low: 183.885, Close: 185.64, Volume: 82488674},
		{Date: day(3), Open: 184.22, High: 185.88, Low: 183.43, Close: 184.25, Volume: 58414460},
	}

	c := NewSeriesCache(dir, time.Minute, time.Minute)
	require.NoError(t, c.Save("AAPL", bars))
	assert.FileExists(t, filepath.Join(dir, "AAPL.csv"))

	// A fresh cache has to go through the file.
	fresh := NewSeriesCache(dir, time.Minute, time.Minute)
	loaded, err := fresh.Load("AAPL")
	require.NoError(t, err)
	assert.Equal(t, bars, loaded)
}

func TestSeriesCache_Missing(t *testing.T) {
	c := NewSeriesCache(t.TempDir(), time.Minute, time.Minute)

	_, err := c.Load("NOPE")

	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestSeriesCache_HeaderOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "X.csv"), []byte("Date,Open,High,Low,Close,Volume\n"), 0o644))

	_, err := NewSeriesCache(dir, time.Minute, time.Minute).Load("X")

	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestSeriesCache_LoadsTimestampedDates(t *testing.T) {
	dir := t.TempDir()
	content := "Date,Open,High,Low,Close,Volume\n" +
		"2024-01-02 00:00:00-05:00,10,12,9,11,100\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Y.csv"), []byte(content), 0o644))

	bars, err := NewSeriesCache(dir, time.Minute, time.Minute).Load("Y")

	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, day(2), bars[0].Date)
	assert.Equal(t, 11.0, bars[0].Close)
}

func TestSeriesCache_Malformed(t *testing.T) {
	dir := t.TempDir()
	content := "Date,Open,High,Low,Close,Volume\n2024-01-02,ten,12,9,11,100\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BAD.csv"), []byte(content), 0o644))

	_, err := NewSeriesCache(dir, time.Minute, time.Minute).Load("BAD")

	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrDataUnavailable))
	assert.Contains(t, err.Error(), "line 2")
}

func TestSeriesCache_RejectsPathsOutsideDir(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	content := "Date,Open,High,Low,Close,Volume\n2024-01-09,1,2,1,1.5,0\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "SECRET.csv"), []byte(content), 0o644))

	c := NewSeriesCache(dataDir, time.Minute, time.Minute)
	for _, symbol := range []string{"../SECRET", `..\SECRET`, "a/b", "..", ""} {
		bars, err := c.Load(symbol)
		assert.True(t, errors.Is(err, ErrInvalidSymbol), "load %q", symbol)
		assert.Nil(t, bars)

		err = c.Save(symbol, []Bar{{Date: day(2), Close: 1}})
		assert.True(t, errors.Is(err, ErrInvalidSymbol), "save %q", symbol)
	}

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSeriesCache_LoadReturnsCopy(t *testing.T) {
	c := NewSeriesCache(t.TempDir(), time.Minute, time.Minute)
	bars := []Bar{{Date: day(2), Close: 10}, {Date: day(3), Close: 11}}
	require.NoError(t, c.Save("AAPL", bars))

	// Neither the saved slice nor a loaded one share storage with the cache.
	bars[0].Close = -1
	first, err := c.Load("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.0, first[0].Close)

	first[1].Close = -1
	second, err := c.Load("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 11.0, second[1].Close)
}
