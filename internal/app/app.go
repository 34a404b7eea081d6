// Package app wires configuration, storage and market data into a command engine.
package app

import (
	"database/sql"
	"fmt"
	"time"

	"paper-trading-ledger-go/internal/config"
	"paper-trading-ledger-go/internal/database"
	"paper-trading-ledger-go/internal/ledger"
	"paper-trading-ledger-go/internal/marketdata"
	"paper-trading-ledger-go/internal/papertrader"

	"go.uber.org/zap"
)

// App holds the long-lived components shared by the front ends.
type App struct {
	Engine *papertrader.Engine
	sqlDB  *sql.DB
}

// New opens the ledger database and builds the engine on top of the Alpaca provider.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	log.Info("Database ready", zap.String("dsn", cfg.Database.DSN))

	client := marketdata.NewRestClient(&cfg.Alpaca, log)
	cache := marketdata.NewSeriesCache(
		cfg.Cache.DataDir,
		time.Duration(cfg.Cache.TTLMinutes)*time.Minute,
		time.Duration(cfg.Cache.CleanupMinutes)*time.Minute,
	)
	provider := marketdata.NewProvider(client, cache, log)

	store := ledger.NewStore(db, ledger.RulesFromConfig(cfg.Ledger), log)
	engine, err := papertrader.NewEngine(log, cfg.Ledger, store, provider)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &App{Engine: engine, sqlDB: sqlDB}, nil
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.sqlDB.Close()
}
