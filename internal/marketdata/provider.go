package marketdata

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// latestSessionLookback covers weekends and market holidays.
const latestSessionLookback = 7 * 24 * time.Hour

// Provider serves price history from the local cache and refreshes it from the API.
type Provider struct {
	client RestClientInterface
	cache  *SeriesCache
	logger *zap.Logger
	now    func() time.Time
}

var _ PriceHistory = (*Provider)(nil)

// NewProvider creates a Provider.
func NewProvider(client RestClientInterface, cache *SeriesCache, logger *zap.Logger) *Provider {
	return &Provider{
		client: client,
		cache:  cache,
		logger: logger.Named("provider"),
		now:    time.Now,
	}
}

// EnsureCached downloads the last days sessions for each symbol and stores them.
func (p *Provider) EnsureCached(ctx context.Context, symbols []string, days int) CacheReport {
	report := CacheReport{Failed: make(map[string]error)}

	end := p.now()
	// Add 50% more calendar days to account for weekends/holidays.
	start := end.Add(-time.Duration(math.Ceil(float64(days)*1.5)) * 24 * time.Hour)

	seen := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}

		if err := ctx.Err(); err != nil {
			report.Failed[symbol] = err
			continue
		}

		l := p.logger.With(zap.String("symbol", symbol))
		l.Info("Downloading price history", zap.Int("days", days))

		bars, err := p.client.GetDailyBars(ctx, symbol, start, end)
		if err != nil {
			l.Error("Failed to download price history", zap.Error(err))
			report.Failed[symbol] = err
			continue
		}
		if len(bars) == 0 {
			l.Warn("No data found")
			report.Failed[symbol] = fmt.Errorf("no data returned for %s: %w", symbol, ErrDataUnavailable)
			continue
		}
		if len(bars) > days {
			bars = bars[len(bars)-days:]
		}

		if err := p.cache.Save(symbol, bars); err != nil {
			l.Error("Failed to store price history", zap.Error(err))
			report.Failed[symbol] = err
			continue
		}

		l.Info("Stored price history", zap.Int("sessions", len(bars)))
		report.Succeeded = append(report.Succeeded, symbol)
	}

	p.logger.Info("Download summary",
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
	)
	return report
}

// GetSeries returns the cached series for symbol.
func (p *Provider) GetSeries(symbol string) ([]Bar, error) {
	return p.cache.Load(symbol)
}

// GetLatestSession fetches the most recent daily bar for symbol.
func (p *Provider) GetLatestSession(ctx context.Context, symbol string) (Bar, error) {
	end := p.now()
	bars, err := p.client.GetDailyBars(ctx, symbol, end.Add(-latestSessionLookback), end)
	if err != nil {
		return Bar{}, err
	}
	if len(bars) == 0 {
		return Bar{}, fmt.Errorf("no recent session for %s: %w", symbol, ErrDataUnavailable)
	}
	return bars[len(bars)-1], nil
}
