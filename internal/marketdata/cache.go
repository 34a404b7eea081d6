package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

var csvHeader = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// SeriesCache stores one CSV file per symbol under dir and memoizes parsed
// series in memory.
type SeriesCache struct {
	dir string
	mem *cache.Cache
}

// NewSeriesCache creates a cache rooted at dir. Parsed series stay in memory for ttl.
func NewSeriesCache(dir string, ttl, cleanup time.Duration) *SeriesCache {
	return &SeriesCache{
		dir: dir,
		mem: cache.New(ttl, cleanup),
	}
}

// ErrInvalidSymbol is returned for symbols that cannot name a file inside the cache directory.
var ErrInvalidSymbol = errors.New("symbol is not a valid file name")

func (c *SeriesCache) path(symbol string) (string, error) {
	if symbol == "" || symbol == "." || symbol == ".." ||
		strings.ContainsAny(symbol, `/\`) || filepath.Base(symbol) != symbol {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return filepath.Join(c.dir, symbol+".csv"), nil
}

// Save replaces the stored series for symbol.
func (c *SeriesCache) Save(symbol string, bars []Bar) error {
	path, err := c.path(symbol)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, symbol+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return err
	}
	for _, b := range bars {
		if err := w.Write([]string{
			b.Date.Format(time.DateOnly),
			f(b.Open),
			f(b.High),
			f(b.Low),
			f(b.Close),
			f(b.Volume),
		}); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store series for %s: %w", symbol, err)
	}
	c.mem.Set(symbol, slices.Clone(bars), cache.DefaultExpiration)
	return nil
}

// Load returns a copy of the stored series for symbol, or ErrDataUnavailable.
func (c *SeriesCache) Load(symbol string) ([]Bar, error) {
	path, err := c.path(symbol)
	if err != nil {
		return nil, err
	}
	if v, ok := c.mem.Get(symbol); ok {
		return slices.Clone(v.([]Bar)), nil
	}

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no data file for %s: %w", symbol, ErrDataUnavailable)
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read series for %s: %w", symbol, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("empty data file for %s: %w", symbol, ErrDataUnavailable)
	}

	bars := make([]Bar, 0, len(rows)-1)
	for i, row := range rows[1:] {
		b, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", symbol, i+2, err)
		}
		bars = append(bars, b)
	}

	c.mem.Set(symbol, slices.Clone(bars), cache.DefaultExpiration)
	return bars, nil
}

func parseRow(row []string) (Bar, error) {
	if len(row) < 5 {
		return Bar{}, fmt.Errorf("expected at least 5 columns, got %d", len(row))
	}

	// Dates may carry a time component; only the calendar day matters.
	day := row[0]
	if len(day) > len(time.DateOnly) {
		day = day[:len(time.DateOnly)]
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(day))
	if err != nil {
		return Bar{}, err
	}

	var vals [5]float64
	for i := 1; i < len(row) && i <= 5; i++ {
		if vals[i-1], err = strconv.ParseFloat(strings.TrimSpace(row[i]), 64); err != nil {
			return Bar{}, err
		}
	}

	return Bar{Date: date, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
