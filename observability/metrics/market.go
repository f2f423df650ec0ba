package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics tracks transaction outcomes and escrowed value.
type MarketMetrics struct {
	transactions *prometheus.CounterVec
	locked       prometheus.Gauge
	height       prometheus.Gauge
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics

	rpcOnce     sync.Once
	rpcRegistry *RPCMetrics
)

// Market returns the lazily-initialised marketplace metrics registry.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lance",
				Subsystem: "market",
				Name:      "transactions_total",
				Help:      "Transactions submitted to the node segmented by type and outcome.",
			}, []string{"type", "outcome"}),
			locked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lance",
				Subsystem: "market",
				Name:      "escrow_locked_units",
				Help:      "Native units currently held by contract vaults.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lance",
				Subsystem: "market",
				Name:      "height",
				Help:      "Height of the latest sealed header.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.transactions,
			marketRegistry.locked,
			marketRegistry.height,
		)
	})
	return marketRegistry
}

// ObserveTransaction counts a transaction of txType with outcome, typically
// "accepted" or an error kind.
func (m *MarketMetrics) ObserveTransaction(txType, outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(txType, outcome).Inc()
}

// SetLocked records the total vault balance.
func (m *MarketMetrics) SetLocked(total *big.Int) {
	if m == nil || total == nil {
		return
	}
	value, _ := new(big.Float).SetInt(total).Float64()
	m.locked.Set(value)
}

// SetHeight records the latest sealed height.
func (m *MarketMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}

// RPCMetrics tracks JSON-RPC request volume and latency.
type RPCMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	throttle prometheus.Counter
}

// RPC returns the lazily-initialised JSON-RPC metrics registry.
func RPC() *RPCMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lance",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lance",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttle: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lance",
				Subsystem: "rpc",
				Name:      "throttled_total",
				Help:      "Requests rejected by the per-client rate limiter.",
			}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.latency,
			rpcRegistry.throttle,
		)
	})
	return rpcRegistry
}

// Observe records the outcome and latency of a request.
func (m *RPCMetrics) Observe(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Throttled counts a rate-limited request.
func (m *RPCMetrics) Throttled() {
	if m == nil {
		return
	}
	m.throttle.Inc()
}
