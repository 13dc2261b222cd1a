package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	klinesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_klines_processed_total",
			Help: "Number of final klines processed per symbol",
		},
		[]string{"symbol"},
	)

	signalsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signals_detected_total",
			Help: "Number of MACD crossover signals detected",
		},
		[]string{"direction"},
	)

	ordersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_created_total",
			Help: "Number of order groups created",
		},
		[]string{"symbol", "side"},
	)

	ordersClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_closed_total",
			Help: "Number of orders closed, by terminal state",
		},
		[]string{"symbol", "state"},
	)

	persistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_persistence_failures_total",
			Help: "Number of failed order store writes, by store",
		},
		[]string{"store"},
	)

	activeOrders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_active_orders",
			Help: "Number of currently active orders per symbol",
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		klinesProcessed,
		signalsDetected,
		ordersCreated,
		ordersClosed,
		persistenceFailures,
		activeOrders,
	)
}

func RecordKline(symbol string) {
	klinesProcessed.WithLabelValues(symbol).Inc()
}

func RecordSignal(direction string) {
	signalsDetected.WithLabelValues(direction).Inc()
}

func RecordOrderCreated(symbol, side string) {
	ordersCreated.WithLabelValues(symbol, side).Inc()
	activeOrders.WithLabelValues(symbol).Set(1)
}

func RecordOrderClosed(symbol, state string) {
	ordersClosed.WithLabelValues(symbol, state).Inc()
	activeOrders.WithLabelValues(symbol).Set(0)
}

func RecordPersistenceFailure(store string) {
	persistenceFailures.WithLabelValues(store).Inc()
}

// Serve exposes /metrics on the given address until the context is
// canceled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
