package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"macdTraderBot/internal/domain"
	"macdTraderBot/internal/ports"
)

const testnetBaseURL = "https://testnet.binance.vision"

// Config holds the Binance client configuration.
type Config struct {
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Websocket reconnect behavior.
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

// Client implements ports.ExchangeClient against the Binance spot API.
type Client struct {
	client *binance.Client
	cfg    Config
	logger ports.Logger
}

// NewClient creates a Binance spot client. On testnet both the REST base
// URL and the websocket endpoints are switched.
func NewClient(cfg Config, logger ports.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: API key and secret are required", ports.ErrConfigurationError)
	}
	if cfg.ReconnectInitialDelay <= 0 {
		cfg.ReconnectInitialDelay = time.Second
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectInitialDelay {
		cfg.ReconnectMaxDelay = 2 * time.Minute
	}

	c := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.IsTestnet {
		c.BaseURL = testnetBaseURL
		binance.UseTestnet = true
	}

	return &Client{client: c, cfg: cfg, logger: logger}, nil
}

// PlaceLimitOrder places a single limit order.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price decimal.Decimal, tif domain.TimeInForce) (*ports.OrderAck, error) {
	op := "PlaceLimitOrder"

	res, err := c.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceType(tif)).
		Quantity(quantity.String()).
		Price(price.String()).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, op, err)
	}

	ack := &ports.OrderAck{
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Side:          side,
		Type:          domain.TypeLimit,
		Status:        string(res.Status),
		TransactTime:  time.UnixMilli(res.TransactTime),
	}
	if ack.Price, err = parseDecimal(res.Price); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ack.ExecutedQty, err = parseDecimal(res.ExecutedQuantity); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ack, nil
}

// PlaceOCOOrder places a take-profit / stop-loss bracket. The stop-limit
// leg uses the stop price as its limit price.
func (c *Client) PlaceOCOOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, takeProfit, stopLoss decimal.Decimal) (*ports.OCOOrderAck, error) {
	op := "PlaceOCOOrder"

	res, err := c.client.NewCreateOCOService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Quantity(quantity.String()).
		Price(takeProfit.String()).
		StopPrice(stopLoss.String()).
		StopLimitPrice(stopLoss.String()).
		StopLimitTimeInForce(binance.TimeInForceTypeGTC).
		ListClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, op, err)
	}

	ack := &ports.OCOOrderAck{OrderListID: res.OrderListID}
	for _, rep := range res.OrderReports {
		price, err := parseDecimal(rep.Price)
		if err != nil {
			return nil, fmt.Errorf("%s: order %d: %w", op, rep.OrderID, err)
		}
		ack.Reports = append(ack.Reports, ports.OrderAck{
			OrderID:       rep.OrderID,
			ClientOrderID: rep.ClientOrderID,
			Symbol:        rep.Symbol,
			Side:          domain.OrderSide(rep.Side),
			Type:          domain.OrderType(rep.Type),
			Price:         price,
			Status:        string(rep.Status),
			TransactTime:  time.UnixMilli(rep.TransactionTime),
		})
	}
	return ack, nil
}

// CancelOrder cancels a working order.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	op := "CancelOrder"

	_, err := c.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, op, err)
	}
	return nil
}

// GetOrder fetches the current exchange view of an order.
func (c *Client) GetOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderAck, error) {
	op := "GetOrder"

	res, err := c.client.NewGetOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, op, err)
	}

	ack := &ports.OrderAck{
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Side:          domain.OrderSide(res.Side),
		Type:          domain.OrderType(res.Type),
		Status:        string(res.Status),
		TransactTime:  time.UnixMilli(res.UpdateTime),
	}
	if ack.Price, err = parseDecimal(res.Price); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ack.ExecutedQty, err = parseDecimal(res.ExecutedQuantity); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ack, nil
}

// GetKlines fetches up to limit historical klines, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	op := "GetKlines"

	res, err := c.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, op, err)
	}

	out := make([]domain.Kline, 0, len(res))
	for _, k := range res {
		dk, err := translateKline(symbol, interval, k)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, dk)
	}
	return out, nil
}

// StreamKlines subscribes to the combined kline stream for the given
// symbols and keeps the subscription alive across websocket drops with
// exponential backoff. The returned stopCh ends the stream; doneCh closes
// once the reconnect loop has exited.
func (c *Client) StreamKlines(ctx context.Context, symbols []string, interval string, handler func(domain.Kline), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one symbol is required", ports.ErrInvalidRequest)
	}

	pairs := make(map[string]string, len(symbols))
	for _, s := range symbols {
		pairs[s] = interval
	}

	wsHandler := func(event *binance.WsKlineEvent) {
		dk, err := translateWsKline(event)
		if err != nil {
			errHandler(err)
			return
		}
		handler(dk)
	}

	doneCh := make(chan struct{})
	stopCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		delay := c.cfg.ReconnectInitialDelay
		for {
			innerDone, innerStop, err := binance.WsCombinedKlineServe(pairs, wsHandler, errHandler)
			if err != nil {
				c.logger.Error(ctx, err, "kline stream connect failed", map[string]interface{}{
					"retryIn": delay.String(),
				})
			} else {
				c.logger.Info(ctx, "kline stream connected", map[string]interface{}{
					"symbols":  strings.Join(symbols, ","),
					"interval": interval,
				})
				delay = c.cfg.ReconnectInitialDelay

				select {
				case <-stopCh:
					close(innerStop)
					<-innerDone
					return
				case <-ctx.Done():
					close(innerStop)
					<-innerDone
					return
				case <-innerDone:
					c.logger.Warn(ctx, "kline stream disconnected, reconnecting", map[string]interface{}{
						"retryIn": delay.String(),
					})
				}
			}

			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.cfg.ReconnectMaxDelay {
				delay = c.cfg.ReconnectMaxDelay
			}
		}
	}()

	return doneCh, stopCh, nil
}

// Ping checks connectivity to the exchange.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, "Ping", err)
	}
	return nil
}

// GetServerTime returns the exchange server time.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	ms, err := c.client.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, "GetServerTime", err)
	}
	return time.UnixMilli(ms), nil
}

// handleError maps Binance API errors onto the standard port errors and
// logs the original cause.
func (c *Client) handleError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, ports.ErrContextCanceled)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ports.ErrTimeout)
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		c.logger.Warn(ctx, op+": exchange API error", map[string]interface{}{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
		switch apiErr.Code {
		case -1003:
			return fmt.Errorf("%s: %w: %s", op, ports.ErrRateLimited, apiErr.Message)
		case -1021:
			return fmt.Errorf("%s: %w: timestamp out of sync: %s", op, ports.ErrInvalidRequest, apiErr.Message)
		case -2010:
			if strings.Contains(strings.ToLower(apiErr.Message), "insufficient") {
				return fmt.Errorf("%s: %w: %s", op, ports.ErrInsufficientFunds, apiErr.Message)
			}
			return fmt.Errorf("%s: %w: %s", op, ports.ErrOrderPlacementFailed, apiErr.Message)
		case -2011:
			return fmt.Errorf("%s: %w: %s", op, ports.ErrOrderNotFound, apiErr.Message)
		case -2013:
			return fmt.Errorf("%s: %w: %s", op, ports.ErrOrderNotFound, apiErr.Message)
		case -2014, -2015:
			return fmt.Errorf("%s: %w: %s", op, ports.ErrInvalidAPIKeys, apiErr.Message)
		}
		return fmt.Errorf("%s: %w: code %d: %s", op, ports.ErrExchangeUnavailable, apiErr.Code, apiErr.Message)
	}

	c.logger.Error(ctx, err, op+": exchange call failed")
	return fmt.Errorf("%s: %w: %v", op, ports.ErrConnectionFailed, err)
}

func newClientOrderID() string {
	return "mtb-" + uuid.NewString()
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing decimal %q: %v", s, err)
	}
	return d, nil
}

func translateKline(symbol, interval string, k *binance.Kline) (domain.Kline, error) {
	open, err := parseDecimal(k.Open)
	if err != nil {
		return domain.Kline{}, err
	}
	high, err := parseDecimal(k.High)
	if err != nil {
		return domain.Kline{}, err
	}
	low, err := parseDecimal(k.Low)
	if err != nil {
		return domain.Kline{}, err
	}
	closePrice, err := parseDecimal(k.Close)
	if err != nil {
		return domain.Kline{}, err
	}
	volume, err := parseDecimal(k.Volume)
	if err != nil {
		return domain.Kline{}, err
	}
	return domain.Kline{
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		IsFinal:   true,
	}, nil
}

func translateWsKline(event *binance.WsKlineEvent) (domain.Kline, error) {
	k := event.Kline
	open, err := parseDecimal(k.Open)
	if err != nil {
		return domain.Kline{}, err
	}
	high, err := parseDecimal(k.High)
	if err != nil {
		return domain.Kline{}, err
	}
	low, err := parseDecimal(k.Low)
	if err != nil {
		return domain.Kline{}, err
	}
	closePrice, err := parseDecimal(k.Close)
	if err != nil {
		return domain.Kline{}, err
	}
	volume, err := parseDecimal(k.Volume)
	if err != nil {
		return domain.Kline{}, err
	}
	return domain.Kline{
		Symbol:    event.Symbol,
		Interval:  k.Interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		OpenTime:  time.UnixMilli(k.StartTime),
		CloseTime: time.UnixMilli(k.EndTime),
		IsFinal:   k.IsFinal,
	}, nil
}
