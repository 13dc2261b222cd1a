package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macdTraderBot/internal/ports"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_SECRET_KEY", "secret")
	t.Setenv("ORDER_QUANTITY", "0.5")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsTestnet)
	assert.Equal(t, []string{"ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, "1m", cfg.Interval)
	assert.Equal(t, 12, cfg.FastPeriod)
	assert.Equal(t, 26, cfg.SlowPeriod)
	assert.Equal(t, 9, cfg.SignalPeriod)
	assert.Equal(t, 78, cfg.SlidingWindowSize)
	assert.Equal(t, "0.95", cfg.StopLossPct.String())
	assert.Equal(t, "1.05", cfg.TakeProfitPct.String())
	assert.Equal(t, "0.5", cfg.OrderQuantity.String())
	assert.Equal(t, time.Second, cfg.ReconnectInitialDelay)
	assert.Equal(t, 2*time.Minute, cfg.ReconnectMaxDelay)
	assert.Equal(t, 64, cfg.IngestQueueSize)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SYMBOLS", "ethusdt, btcusdt")
	t.Setenv("SLIDING_WINDOW_SIZE", "100")
	t.Setenv("STOP_LOSS_PCT", "0.97")
	t.Setenv("RECONNECT_INITIAL_DELAY", "500ms")
	t.Setenv("IS_TESTNET", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT"}, cfg.Symbols)
	assert.Equal(t, 100, cfg.SlidingWindowSize)
	assert.Equal(t, "0.97", cfg.StopLossPct.String())
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectInitialDelay)
	assert.False(t, cfg.IsTestnet)
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	t.Run("missing api keys", func(t *testing.T) {
		t.Setenv("BINANCE_API_KEY", "")
		t.Setenv("BINANCE_SECRET_KEY", "")
		t.Setenv("ORDER_QUANTITY", "0.5")

		_, err := LoadConfig()
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})

	t.Run("missing order quantity", func(t *testing.T) {
		t.Setenv("BINANCE_API_KEY", "key")
		t.Setenv("BINANCE_SECRET_KEY", "secret")
		t.Setenv("ORDER_QUANTITY", "")

		_, err := LoadConfig()
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "malformed order quantity", key: "ORDER_QUANTITY", value: "half"},
		{name: "malformed stop loss", key: "STOP_LOSS_PCT", value: "ninety-five"},
		{name: "fast period not below slow", key: "FAST_PERIOD", value: "26"},
		{name: "window below analyzer minimum", key: "SLIDING_WINDOW_SIZE", value: "34"},
		{name: "empty symbol list", key: "SYMBOLS", value: " , "},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := LoadConfig()
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
		})
	}
}
