package papertrader

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"paper-trading-ledger-go/internal/config"
	"paper-trading-ledger-go/internal/database"
	"paper-trading-ledger-go/internal/indicator"
	"paper-trading-ledger-go/internal/ledger"
	"paper-trading-ledger-go/internal/marketdata"
	"paper-trading-ledger-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockPriceHistory is a mock implementation of marketdata.PriceHistory.
type MockPriceHistory struct {
	mock.Mock
}

func (m *MockPriceHistory) EnsureCached(ctx context.Context, symbols []string, days int) marketdata.CacheReport {
	args := m.Called(symbols, days)
	return args.Get(0).(marketdata.CacheReport)
}

func (m *MockPriceHistory) GetSeries(symbol string) ([]marketdata.Bar, error) {
	args := m.Called(symbol)
	return args.Get(0).([]marketdata.Bar), args.Error(1)
}

func (m *MockPriceHistory) GetLatestSession(ctx context.Context, symbol string) (marketdata.Bar, error) {
	args := m.Called(symbol)
	return args.Get(0).(marketdata.Bar), args.Error(1)
}

var tradeDay = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func testLedgerConfig() config.Ledger {
	return config.Ledger{
		RiskBudget:   1000,
		LimitFactor:  0.4,
		GapThreshold: 0.4,
		ATRWindow:    3,
		ATRSmoothing: "sma",
		HistoryDays:  10,
	}
}

// setupTest creates a full test environment with a mock provider and a fresh SQLite file.
func setupTest(t *testing.T) (*Engine, *MockPriceHistory, *gorm.DB) {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)

	cfg := testLedgerConfig()
	store := ledger.NewStore(db, ledger.RulesFromConfig(cfg), zap.NewNop())
	prices := new(MockPriceHistory)

	engine, err := NewEngine(zap.NewNop(), cfg, store, prices)
	require.NoError(t, err)
	return engine, prices, db
}

// flatSeries returns n bars ending the day before tradeDay with a constant
// true range of 2*halfRange around close.
func flatSeries(n int, close, halfRange float64) []marketdata.Bar {
	bars := make([]marketdata.Bar, n)
	for i := range bars {
		bars[i] = marketdata.Bar{
			Date:  tradeDay.AddDate(0, 0, i-n),
			Open:  close,
			High:  close + halfRange,
			Low:   close - halfRange,
			Close: close,
		}
	}
	return bars
}

func TestNewEngine_InvalidSmoothing(t *testing.T) {
	cfg := testLedgerConfig()
	cfg.ATRSmoothing = "ema"

	_, err := NewEngine(zap.NewNop(), cfg, nil, nil)

	assert.Error(t, err)
}

func TestEngine_SubmitPositions(t *testing.T) {
	engine, _, _ := setupTest(t)
	ctx := context.Background()

	report, err := engine.SubmitPositions(ctx, tradeDay, []string{"aapl", " ", "MSFT"}, []string{"TSLA", ""})

	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, report.Succeeded)
	assert.Empty(t, report.Failed)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, CommandSubmit, report.Command)

	trades, err := engine.Store().FindByDate(ctx, tradeDay)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, models.Long, trades[0].TradeType)
	assert.Equal(t, models.Long, trades[1].TradeType)
	assert.Equal(t, models.Short, trades[2].TradeType)

	// Resubmitting flips the direction without duplicating.
	_, err = engine.SubmitPositions(ctx, tradeDay, nil, []string{"AAPL"})
	require.NoError(t, err)
	trade, err := engine.Store().Get(ctx, "AAPL", tradeDay)
	require.NoError(t, err)
	assert.Equal(t, models.Short, trade.TradeType)
	all, err := engine.Store().ListAllOrderedByDate(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestEngine_RefreshAndSize(t *testing.T) {
	engine, prices, _ := setupTest(t)
	ctx := context.Background()

	_, err := engine.SubmitPositions(ctx, tradeDay, []string{"AAPL", "MSFT"}, []string{"TSLA"})
	require.NoError(t, err)

	prices.On("EnsureCached", []string{"AAPL", "MSFT", "TSLA"}, 10).Return(marketdata.CacheReport{
		Succeeded: []string{"AAPL", "TSLA"},
		Failed:    map[string]error{"MSFT": errors.New("API down")},
	})
	prices.On("GetSeries", "AAPL").Return(flatSeries(5, 190, 2), nil)
	prices.On("GetSeries", "MSFT").Return([]marketdata.Bar(nil), marketdata.ErrDataUnavailable)
	prices.On("GetSeries", "TSLA").Return(flatSeries(2, 250, 5), nil)

	report, err := engine.RefreshAndSize(ctx, tradeDay)

	require.NoError(t, err)
	prices.AssertExpectations(t)
	assert.Equal(t, []string{"AAPL"}, report.Succeeded)
	require.Len(t, report.Failed, 2)
	assert.True(t, errors.Is(report.Failed["MSFT"], marketdata.ErrDataUnavailable))
	assert.Contains(t, report.Failed["MSFT"].Error(), "API down")
	assert.True(t, errors.Is(report.Failed["TSLA"], ledger.ErrInvalidVolatility))

	aapl, err := engine.Store().Get(ctx, "AAPL", tradeDay)
	require.NoError(t, err)
	assert.Equal(t, 4.0, *aapl.ATR)
	assert.Equal(t, 190.0, *aapl.LastClose)
	assert.Equal(t, int64(250), *aapl.Quantity)
	assert.InDelta(t, 191.6, *aapl.Limit, 1e-9)

	tsla, err := engine.Store().Get(ctx, "TSLA", tradeDay)
	require.NoError(t, err)
	assert.Nil(t, tsla.ATR)
	assert.Nil(t, tsla.Quantity)
}

func TestEngine_RefreshAndSize_InsufficientHistory(t *testing.T) {
	engine, prices, _ := setupTest(t)
	ctx := context.Background()

	_, err := engine.SubmitPositions(ctx, tradeDay, []string{"NEW"}, nil)
	require.NoError(t, err)

	later := []marketdata.Bar{{Date: tradeDay.AddDate(0, 0, 1), High: 11, Low: 9, Close: 10}}
	prices.On("EnsureCached", []string{"NEW"}, 10).Return(marketdata.CacheReport{Succeeded: []string{"NEW"}, Failed: map[string]error{}})
	prices.On("GetSeries", "NEW").Return(later, nil)

	report, err := engine.RefreshAndSize(ctx, tradeDay)

	require.NoError(t, err)
	assert.True(t, errors.Is(report.Failed["NEW"], indicator.ErrInsufficientHistory))
}

func TestEngine_RefreshAndSize_NoTrades(t *testing.T) {
	engine, prices, _ := setupTest(t)

	report, err := engine.RefreshAndSize(context.Background(), tradeDay)

	require.NoError(t, err)
	assert.Empty(t, report.Succeeded)
	prices.AssertNotCalled(t, "EnsureCached", mock.Anything, mock.Anything)
}

func TestEngine_Reconcile(t *testing.T) {
	engine, prices, _ := setupTest(t)
	ctx := context.Background()

	_, err := engine.SubmitPositions(ctx, tradeDay, []string{"AAPL", "MSFT", "NFLX"}, []string{"TSLA"})
	require.NoError(t, err)
	_, err = engine.Store().ApplySizing(ctx, "AAPL", tradeDay, 4, 190)
	require.NoError(t, err)
	_, err = engine.Store().ApplySizing(ctx, "NFLX", tradeDay, 10, 480)
	require.NoError(t, err)

	prices.On("GetLatestSession", "AAPL").Return(marketdata.Bar{Date: tradeDay, Open: 192.5, High: 196, Low: 192, Close: 195}, nil)
	prices.On("GetLatestSession", "MSFT").Return(marketdata.Bar{}, errors.New("timeout"))
	prices.On("GetLatestSession", "NFLX").Return(marketdata.Bar{Date: tradeDay.AddDate(0, 0, -1), Open: 480, Close: 490}, nil)
	prices.On("GetLatestSession", "TSLA").Return(marketdata.Bar{Date: tradeDay, Open: 240, Close: 238}, nil)

	report, err := engine.Reconcile(ctx, tradeDay)

	require.NoError(t, err)
	prices.AssertExpectations(t)
	assert.Equal(t, []string{"AAPL"}, report.Succeeded)
	assert.Equal(t, []string{"MSFT", "NFLX", "TSLA"}, report.FailedSymbols())
	assert.EqualError(t, report.Failed["MSFT"], "timeout")
	assert.True(t, errors.Is(report.Failed["NFLX"], ErrNoSession))
	assert.True(t, errors.Is(report.Failed["TSLA"], ledger.ErrIncompleteTrade))

	require.Len(t, report.Trades, 1)
	aapl := report.Trades[0]
	assert.InDelta(t, 0.625, *aapl.GapInATR, 1e-9)
	assert.Equal(t, 0.0, *aapl.Profit)
	assert.InDelta(t, 625.0, *aapl.ProfitOriginal, 1e-9)
}

func TestEngine_Cancelled(t *testing.T) {
	engine, prices, _ := setupTest(t)
	_, err := engine.SubmitPositions(context.Background(), tradeDay, []string{"AAPL"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = engine.Reconcile(ctx, tradeDay)

	assert.True(t, errors.Is(err, context.Canceled))
	prices.AssertNotCalled(t, "GetLatestSession", mock.Anything)
}

func TestEngine_StorageFailureAborts(t *testing.T) {
	engine, _, db := setupTest(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	report, err := engine.SubmitPositions(context.Background(), tradeDay, []string{"AAPL", "MSFT"}, nil)

	assert.True(t, errors.Is(err, ledger.ErrStorage))
	assert.Empty(t, report.Succeeded)
	assert.Empty(t, report.Failed)
}

func TestEngine_ClearAll(t *testing.T) {
	engine, _, _ := setupTest(t)
	ctx := context.Background()

	_, err := engine.SubmitPositions(ctx, tradeDay, []string{"AAPL", "MSFT"}, nil)
	require.NoError(t, err)

	deleted, err := engine.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = engine.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}
