package binanceclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macdTraderBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{APIKey: "key", SecretKey: "secret", IsTestnet: true}, &mockLogger{})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{}, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewClient(Config{APIKey: "key", SecretKey: "secret"}, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestHandleError_APICodeMapping(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	testCases := []struct {
		name    string
		err     error
		wantErr error
	}{
		{
			name:    "rate limit",
			err:     &common.APIError{Code: -1003, Message: "Too many requests"},
			wantErr: ports.ErrRateLimited,
		},
		{
			name:    "insufficient balance",
			err:     &common.APIError{Code: -2010, Message: "Account has insufficient balance"},
			wantErr: ports.ErrInsufficientFunds,
		},
		{
			name:    "order rejected",
			err:     &common.APIError{Code: -2010, Message: "Order would immediately match"},
			wantErr: ports.ErrOrderPlacementFailed,
		},
		{
			name:    "cancel rejected unknown order",
			err:     &common.APIError{Code: -2011, Message: "Unknown order sent"},
			wantErr: ports.ErrOrderNotFound,
		},
		{
			name:    "order does not exist",
			err:     &common.APIError{Code: -2013, Message: "Order does not exist"},
			wantErr: ports.ErrOrderNotFound,
		},
		{
			name:    "invalid api key",
			err:     &common.APIError{Code: -2014, Message: "API-key format invalid"},
			wantErr: ports.ErrInvalidAPIKeys,
		},
		{
			name:    "unmapped api code",
			err:     &common.APIError{Code: -1000, Message: "Unknown error"},
			wantErr: ports.ErrExchangeUnavailable,
		},
		{
			name:    "context canceled",
			err:     context.Canceled,
			wantErr: ports.ErrContextCanceled,
		},
		{
			name:    "deadline exceeded",
			err:     context.DeadlineExceeded,
			wantErr: ports.ErrTimeout,
		},
		{
			name:    "plain transport error",
			err:     errors.New("connection refused"),
			wantErr: ports.ErrConnectionFailed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.handleError(ctx, "TestOp", tc.err)
			assert.ErrorIs(t, got, tc.wantErr)
			assert.Contains(t, got.Error(), "TestOp")
		})
	}

	t.Run("nil error", func(t *testing.T) {
		assert.NoError(t, c.handleError(ctx, "TestOp", nil))
	})
}

func TestTranslateKline(t *testing.T) {
	k := &binance.Kline{
		OpenTime:  1735689600000,
		CloseTime: 1735689659999,
		Open:      "2500.10",
		High:      "2510.00",
		Low:       "2490.00",
		Close:     "2505.50",
		Volume:    "123.456",
	}

	got, err := translateKline("ETHUSDT", "1m", k)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", got.Symbol)
	assert.Equal(t, "1m", got.Interval)
	assert.Equal(t, "2505.5", got.Close.String())
	assert.Equal(t, time.UnixMilli(1735689659999), got.CloseTime)
	assert.True(t, got.IsFinal)
}

func TestTranslateKline_MalformedPrice(t *testing.T) {
	k := &binance.Kline{Open: "not-a-number"}
	_, err := translateKline("ETHUSDT", "1m", k)
	assert.Error(t, err)
}

func TestTranslateWsKline(t *testing.T) {
	event := &binance.WsKlineEvent{
		Symbol: "ETHUSDT",
		Kline: binance.WsKline{
			StartTime: 1735689600000,
			EndTime:   1735689659999,
			Interval:  "1m",
			Open:      "2500.10",
			High:      "2510.00",
			Low:       "2490.00",
			Close:     "2505.50",
			Volume:    "123.456",
			IsFinal:   false,
		},
	}

	got, err := translateWsKline(event)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", got.Symbol)
	assert.False(t, got.IsFinal)
	assert.Equal(t, "2505.5", got.Close.String())
}
