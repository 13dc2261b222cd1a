package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"macdTraderBot/internal/ports"
)

// Config holds the application configuration, loaded from environment
// variables with an optional .env file.
type Config struct {
	// Exchange
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market data
	Symbols  []string
	Interval string

	// Strategy
	FastPeriod        int
	SlowPeriod        int
	SignalPeriod      int
	SlidingWindowSize int
	StopLossPct       decimal.Decimal
	TakeProfitPct     decimal.Decimal
	OrderQuantity     decimal.Decimal

	// Persistence
	DBPath    string
	IndexPath string

	// Operations
	MetricsAddr           string
	LogLevel              string
	IngestQueueSize       int
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	// Missing .env is fine in production; real environments set variables
	// directly.
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:    os.Getenv("BINANCE_API_KEY"),
		SecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		IsTestnet: getEnvAsBool("IS_TESTNET", true),

		Symbols:  splitList(getEnv("SYMBOLS", "ETHUSDT")),
		Interval: getEnv("INTERVAL", "1m"),

		FastPeriod:        getEnvAsInt("FAST_PERIOD", 12),
		SlowPeriod:        getEnvAsInt("SLOW_PERIOD", 26),
		SignalPeriod:      getEnvAsInt("SIGNAL_PERIOD", 9),
		SlidingWindowSize: getEnvAsInt("SLIDING_WINDOW_SIZE", 78),

		DBPath:    getEnv("DB_PATH", "trader.db"),
		IndexPath: getEnv("INDEX_PATH", "orders.bleve"),

		MetricsAddr:           getEnv("METRICS_ADDR", ":9090"),
		LogLevel:              getEnv("LOG_LEVEL", "INFO"),
		IngestQueueSize:       getEnvAsInt("INGEST_QUEUE_SIZE", 64),
		ReconnectInitialDelay: getEnvAsDuration("RECONNECT_INITIAL_DELAY", time.Second),
		ReconnectMaxDelay:     getEnvAsDuration("RECONNECT_MAX_DELAY", 2*time.Minute),
	}

	var err error
	if cfg.StopLossPct, err = getEnvAsDecimal("STOP_LOSS_PCT", "0.95"); err != nil {
		return nil, err
	}
	if cfg.TakeProfitPct, err = getEnvAsDecimal("TAKE_PROFIT_PCT", "1.05"); err != nil {
		return nil, err
	}
	if cfg.OrderQuantity, err = getEnvAsDecimalRequired("ORDER_QUANTITY"); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIKey == "" || c.SecretKey == "" {
		return fmt.Errorf("%w: BINANCE_API_KEY and BINANCE_SECRET_KEY must be set", ports.ErrConfigurationError)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: SYMBOLS must name at least one symbol", ports.ErrConfigurationError)
	}
	if c.FastPeriod <= 0 || c.SlowPeriod <= 0 || c.SignalPeriod <= 0 {
		return fmt.Errorf("%w: MACD periods must be positive", ports.ErrConfigurationError)
	}
	if c.FastPeriod >= c.SlowPeriod {
		return fmt.Errorf("%w: FAST_PERIOD must be smaller than SLOW_PERIOD", ports.ErrConfigurationError)
	}
	if c.SlidingWindowSize < c.SlowPeriod+c.SignalPeriod {
		return fmt.Errorf("%w: SLIDING_WINDOW_SIZE must be at least SLOW_PERIOD+SIGNAL_PERIOD (%d)",
			ports.ErrConfigurationError, c.SlowPeriod+c.SignalPeriod)
	}
	if c.IngestQueueSize <= 0 {
		return fmt.Errorf("%w: INGEST_QUEUE_SIZE must be positive", ports.ErrConfigurationError)
	}
	return nil
}

// --- Helper functions for reading environment variables ---

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := getEnv(key, defaultValue)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a decimal number, got %q", ports.ErrConfigurationError, key, valueStr)
	}
	return value, nil
}

func getEnvAsDecimalRequired(key string) (decimal.Decimal, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return decimal.Zero, fmt.Errorf("%w: %s must be set", ports.ErrConfigurationError, key)
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a decimal number, got %q", ports.ErrConfigurationError, key, valueStr)
	}
	return value, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}
