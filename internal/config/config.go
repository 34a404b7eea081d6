package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Alpaca   Alpaca   `mapstructure:"alpaca"`
	Ledger   Ledger   `mapstructure:"ledger"`
	Cache    Cache    `mapstructure:"cache"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Alpaca holds the configuration for the Alpaca market data API.
type Alpaca struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	BaseURL        string  `mapstructure:"base_url"`
	Feed           string  `mapstructure:"feed"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Ledger holds the position sizing and reconciliation parameters.
type Ledger struct {
	RiskBudget   float64 `mapstructure:"risk_budget"`
	LimitFactor  float64 `mapstructure:"limit_factor"`
	GapThreshold float64 `mapstructure:"gap_threshold"`
	ATRWindow    int     `mapstructure:"atr_window"`
	ATRSmoothing string  `mapstructure:"atr_smoothing"` // "sma" or "wilder"
	HistoryDays  int     `mapstructure:"history_days"`
}

// Cache holds the configuration for the local price history cache.
type Cache struct {
	DataDir        string `mapstructure:"data_dir"`
	TTLMinutes     int    `mapstructure:"ttl_minutes"`
	CleanupMinutes int    `mapstructure:"cleanup_minutes"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("alpaca.base_url", "https://data.alpaca.markets/v2")
	v.SetDefault("alpaca.feed", "iex")
	v.SetDefault("alpaca.rate_limit", 3) // requests per second
	v.SetDefault("alpaca.rate_limit_burst", 1)

	v.SetDefault("ledger.risk_budget", 1000.0)
	v.SetDefault("ledger.limit_factor", 0.4)
	v.SetDefault("ledger.gap_threshold", 0.4)
	v.SetDefault("ledger.atr_window", 30)
	v.SetDefault("ledger.atr_smoothing", "sma")
	v.SetDefault("ledger.history_days", 100)

	v.SetDefault("cache.data_dir", "data")
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("cache.cleanup_minutes", 120)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.dsn", "papertrading.db")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment apply.
func LoadConfig(path string) (config Config, err error) {
	// Secrets usually live in a .env file next to the binary.
	if err = godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("alpaca.apiKey", "ALPACA_API_KEY")
	_ = v.BindEnv("alpaca.secretKey", "ALPACA_SECRET_KEY")

	SetDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
