package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type AMMMetrics struct {
	tradesExecuted    *prometheus.CounterVec
	limiterRejections *prometheus.CounterVec
	routeLength       prometheus.Histogram
	routeUpdates      *prometheus.CounterVec
	invariantFailures *prometheus.CounterVec
}

var (
	ammOnce     sync.Once
	ammRegistry *AMMMetrics
)

func AMM() *AMMMetrics {
	ammOnce.Do(func() {
		ammRegistry = &AMMMetrics{
			tradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "amm_trades_executed_total",
				Help: "Count of executed trades by pool kind and direction.",
			}, []string{"pool", "direction"}),
			limiterRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "amm_limiter_rejections_total",
				Help: "Count of operations rejected by the circuit breaker by kind.",
			}, []string{"kind"}),
			routeLength: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "amm_route_length_hops",
				Help:    "Distribution of executed route lengths in hops.",
				Buckets: prometheus.LinearBuckets(1, 1, 5),
			}),
			routeUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "amm_route_updates_total",
				Help: "Count of stored route replacements by charge outcome.",
			}, []string{"outcome"}),
			invariantFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "amm_invariant_failures_total",
				Help: "Count of aborted operations that violated a runtime invariant.",
			}, []string{"component"}),
		}
		prometheus.MustRegister(
			ammRegistry.tradesExecuted,
			ammRegistry.limiterRejections,
			ammRegistry.routeLength,
			ammRegistry.routeUpdates,
			ammRegistry.invariantFailures,
		)
	})
	return ammRegistry
}

func (m *AMMMetrics) ObserveTrade(pool, direction string) {
	if m == nil {
		return
	}
	if pool == "" {
		pool = "unknown"
	}
	m.tradesExecuted.WithLabelValues(pool, direction).Inc()
}

func (m *AMMMetrics) IncLimiterRejection(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.limiterRejections.WithLabelValues(kind).Inc()
}

func (m *AMMMetrics) ObserveRouteLength(hops int) {
	if m == nil {
		return
	}
	m.routeLength.Observe(float64(hops))
}

func (m *AMMMetrics) IncRouteUpdate(paid bool) {
	if m == nil {
		return
	}
	outcome := "free"
	if paid {
		outcome = "charged"
	}
	m.routeUpdates.WithLabelValues(outcome).Inc()
}

func (m *AMMMetrics) IncInvariantFailure(component string) {
	if m == nil {
		return
	}
	if component == "" {
		component = "unknown"
	}
	m.invariantFailures.WithLabelValues(component).Inc()
}
