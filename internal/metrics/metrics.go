// Package metrics exposes the engine's Prometheus instrumentation.
//
//   - arb_orders_total{mode,side,result} – IOC submissions by outcome
//   - arb_ticks_total                    – priced ticks
//   - arb_fair_up                        – latest modelled P(up)
//   - arb_edge{side}                     – latest edge per side
//   - arb_volatility                     – blended annualised vol in use
//   - arb_oracle_adjustment              – additive divergence correction
//   - arb_session_spent_usd              – session USD exposure
//   - arb_resolved_trades_total{result}  – settled trades by win/loss
//
// Registered in init() and served at /metrics.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_orders_total",
			Help: "IOC orders by mode, side, and result",
		},
		[]string{"mode", "side", "result"},
	)

	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arb_ticks_total",
			Help: "Priced ticks",
		},
	)

	fairUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arb_fair_up",
			Help: "Modelled probability of the UP outcome",
		},
	)

	edge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arb_edge",
			Help: "Modelled edge against the quoted ask",
		},
		[]string{"side"},
	)

	vol = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arb_volatility",
			Help: "Blended annualised volatility in use",
		},
	)

	oracleAdjustment = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arb_oracle_adjustment",
			Help: "Additive exchange-to-oracle spot correction",
		},
	)

	sessionSpent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arb_session_spent_usd",
			Help: "Cumulative session USD spent",
		},
	)

	resolvedTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arb_resolved_trades_total",
			Help: "Settled trades by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(ordersTotal, ticksTotal, fairUp, edge, vol, oracleAdjustment, sessionSpent, resolvedTrades)
}

// ObserveTick records the outputs of one priced tick.
func ObserveTick(pUp, edgeUp, edgeDown, sigma, adjustment float64) {
	ticksTotal.Inc()
	fairUp.Set(pUp)
	edge.WithLabelValues("up").Set(edgeUp)
	edge.WithLabelValues("down").Set(edgeDown)
	vol.Set(sigma)
	oracleAdjustment.Set(adjustment)
}

// RecordOrder counts one IOC submission outcome.
func RecordOrder(mode, side, result string) {
	ordersTotal.WithLabelValues(mode, side, result).Inc()
}

// SetSessionSpent updates the session exposure gauge.
func SetSessionSpent(usd float64) {
	sessionSpent.Set(usd)
}

// RecordResolvedTrade counts one settled trade.
func RecordResolvedTrade(won bool) {
	result := "loss"
	if won {
		result = "win"
	}
	resolvedTrades.WithLabelValues(result).Inc()
}

// Serve runs the /metrics endpoint until ctx is cancelled.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("metrics server: %v", err)
	}
}
