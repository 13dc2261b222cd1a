package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"macdTraderBot/config"
	"macdTraderBot/internal/adapters/binanceclient"
	"macdTraderBot/internal/adapters/bleveindex"
	"macdTraderBot/internal/adapters/logger"
	"macdTraderBot/internal/adapters/sqlite"
	"macdTraderBot/internal/domain"
	"macdTraderBot/internal/ingest"
	"macdTraderBot/internal/metrics"
	"macdTraderBot/internal/orders"
	"macdTraderBot/internal/ports"
	"macdTraderBot/internal/signal"
	"macdTraderBot/internal/trader"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.NewStdLogger(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info(ctx, "starting trader", map[string]interface{}{
		"symbols":  cfg.Symbols,
		"interval": cfg.Interval,
		"testnet":  cfg.IsTestnet,
	})

	repo, err := sqlite.NewRepository(ctx, cfg.DBPath, log)
	if err != nil {
		return fmt.Errorf("opening order repository: %w", err)
	}
	defer repo.Close()

	index, err := bleveindex.NewIndex(cfg.IndexPath, log)
	if err != nil {
		return fmt.Errorf("opening order index: %w", err)
	}
	defer index.Close()

	client, err := binanceclient.NewClient(binanceclient.Config{
		APIKey:                cfg.APIKey,
		SecretKey:             cfg.SecretKey,
		IsTestnet:             cfg.IsTestnet,
		ReconnectInitialDelay: cfg.ReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.ReconnectMaxDelay,
	}, log)
	if err != nil {
		return fmt.Errorf("creating exchange client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("exchange unreachable: %w", err)
	}

	manager, err := orders.NewManager(client, repo, index, &logNotifier{log: log}, log)
	if err != nil {
		return fmt.Errorf("creating order manager: %w", err)
	}
	manager.StartRepairWorker(ctx)
	defer manager.Close()

	analyzer, err := signal.NewMACDAnalyzer(cfg.FastPeriod, cfg.SlowPeriod, cfg.SignalPeriod, log)
	if err != nil {
		return fmt.Errorf("creating signal analyzer: %w", err)
	}

	engine, err := trader.NewEngine(analyzer, manager, log, trader.Parameters{
		SlidingWindowSize: cfg.SlidingWindowSize,
		StopLossPct:       cfg.StopLossPct,
		TakeProfitPct:     cfg.TakeProfitPct,
		OrderQuantity:     cfg.OrderQuantity,
	})
	if err != nil {
		return fmt.Errorf("creating decision engine: %w", err)
	}

	if err := manager.Reconcile(ctx, cfg.Symbols); err != nil {
		return fmt.Errorf("reconciling orders with exchange: %w", err)
	}

	if err := warmUp(ctx, client, engine, cfg); err != nil {
		return fmt.Errorf("warming up kline windows: %w", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.Error(ctx, err, "metrics server stopped")
		}
	}()

	dispatcher, err := ingest.NewDispatcher(engine, log, cfg.IngestQueueSize)
	if err != nil {
		return fmt.Errorf("creating kline dispatcher: %w", err)
	}

	doneCh, _, err := client.StreamKlines(ctx, cfg.Symbols, cfg.Interval,
		func(k domain.Kline) {
			dispatcher.Dispatch(ctx, k)
		},
		func(err error) {
			log.Warn(ctx, "kline stream error", map[string]interface{}{"error": err.Error()})
		},
	)
	if err != nil {
		return fmt.Errorf("subscribing to kline stream: %w", err)
	}

	log.Info(ctx, "trader running")
	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	<-doneCh
	dispatcher.Wait()
	return nil
}

// warmUp backfills each symbol's sliding window with historical klines so
// the engine can produce signals without waiting out a live warm-up. The
// most recent candle from the REST endpoint may still be open and is
// dropped.
func warmUp(ctx context.Context, client ports.ExchangeClient, engine *trader.Engine, cfg *config.Config) error {
	for _, symbol := range cfg.Symbols {
		klines, err := client.GetKlines(ctx, symbol, cfg.Interval, cfg.SlidingWindowSize+1)
		if err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
		if len(klines) > 0 {
			klines = klines[:len(klines)-1]
		}
		for _, k := range klines {
			if err := engine.OnNewKline(ctx, k); err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
		}
	}
	return nil
}

// logNotifier surfaces order write outcomes in the log. A message bus
// could replace it without touching the lifecycle manager.
type logNotifier struct {
	log ports.Logger
}

func (n *logNotifier) OrderWritten(ctx context.Context, notification ports.OrderNotification) {
	fields := map[string]interface{}{
		"orderID": notification.Record.OrderID,
		"symbol":  notification.Record.Symbol,
		"state":   notification.Record.State,
	}
	if notification.Err != "" {
		fields["indexError"] = notification.Err
		n.log.Warn(ctx, "order written with degraded index", fields)
		return
	}
	n.log.Debug(ctx, "order written", fields)
}
