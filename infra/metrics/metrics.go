// Package metrics exposes session and outbox counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"mmsim/domain/orderbook"
)

const namespace = "mmsim"

type Metrics struct {
	Trades     *prometheus.CounterVec
	Volume     *prometheus.CounterVec
	Requotes   *prometheus.CounterVec
	Rested     prometheus.Counter
	Rejections *prometheus.CounterVec
	Depth      *prometheus.GaugeVec
	Levels     *prometheus.GaugeVec
	Inventory  prometheus.Gauge
	PnL        prometheus.Gauge
	Published  *prometheus.CounterVec
	Journal    prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_total",
			Help: "Fills by aggressor direction and resting origin",
		}, []string{"direction", "origin"}),
		Volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "traded_volume_total",
			Help: "Filled size by aggressor direction and resting origin",
		}, []string{"direction", "origin"}),
		Requotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "requotes_total",
			Help: "Maker levels replenished after a fill, by side",
		}, []string{"side"}),
		Rested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rested_orders_total",
			Help: "Aggressors that rested on their own side at the fallback price",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejections_total",
			Help: "Aggressors that failed, by reason",
		}, []string{"reason"}),
		Depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "book_depth",
			Help: "Total resting size per side",
		}, []string{"side"}),
		Levels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "book_levels",
			Help: "Resting levels per side",
		}, []string{"side"}),
		Inventory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "inventory",
			Help: "Maker inventory after the last tracked trade",
		}),
		PnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cumulative_pnl",
			Help: "Cumulative PnL after the last tracked trade",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_published_total",
			Help: "Outbox publish attempts by outcome",
		}, []string{"outcome"}),
		Journal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "journal_records_total",
			Help: "Commands appended to the journal",
		}),
	}
	reg.MustRegister(
		m.Trades, m.Volume, m.Requotes, m.Rested, m.Rejections,
		m.Depth, m.Levels, m.Inventory, m.PnL, m.Published, m.Journal,
	)
	return m
}

// NewRegistry returns a registry carrying the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ObserveFill counts one trade.
func (m *Metrics) ObserveFill(dir orderbook.Direction, origin orderbook.Origin, size decimal.Decimal) {
	m.Trades.WithLabelValues(dir.String(), origin.String()).Inc()
	m.Volume.WithLabelValues(dir.String(), origin.String()).Add(size.InexactFloat64())
}

// ObserveBook sets the depth gauges from a book view.
func (m *Metrics) ObserveBook(v orderbook.View) {
	for _, side := range []orderbook.Side{orderbook.Bid, orderbook.Ask} {
		m.Depth.WithLabelValues(side.String()).Set(v.TotalDepth(side).InexactFloat64())
		m.Levels.WithLabelValues(side.String()).Set(float64(v.Len(side)))
	}
}
