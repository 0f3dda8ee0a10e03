package observability

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stakerchain"

// StakerMetrics tracks the pooled-funding engine.
type StakerMetrics struct {
	operations  *prometheus.CounterVec
	poolBalance prometheus.Gauge
	completed   prometheus.Gauge
}

type rpcMetrics struct {
	latency   *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	throttles *prometheus.CounterVec
}

var (
	stakerMetricsOnce sync.Once
	stakerRegistry    *StakerMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// Staker returns the lazily-initialised staker metrics registry.
func Staker() *StakerMetrics {
	stakerMetricsOnce.Do(func() {
		stakerRegistry = &StakerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "staker",
				Name:      "operations_total",
				Help:      "Count of staker operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			poolBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "staker",
				Name:      "pool_balance",
				Help:      "Current balance held by the pool in base units.",
			}),
			completed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "staker",
				Name:      "completed",
				Help:      "1 once the pool has been forwarded to the beneficiary.",
			}),
		}
		prometheus.MustRegister(
			stakerRegistry.operations,
			stakerRegistry.poolBalance,
			stakerRegistry.completed,
		)
	})
	return stakerRegistry
}

// RecordOperation increments the operation counter. outcome should be a stable
// string such as "success" or an error kind.
func (m *StakerMetrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(label(operation, "unknown"), label(outcome, "error")).Inc()
}

// SetPool publishes the latest pool balance and completion flag.
func (m *StakerMetrics) SetPool(balance *big.Int, completed bool) {
	if m == nil {
		return
	}
	m.poolBalance.Set(bigToFloat(balance))
	if completed {
		m.completed.Set(1)
		return
	}
	m.completed.Set(0)
}

// RPC returns the metrics registry for the JSON-RPC server.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC methods.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.latency,
			rpcRegistry.errors,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the latency of a JSON-RPC call and, when code is non-zero,
// the error it produced.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	method = label(method, "unknown")
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
	if code != 0 {
		m.errors.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(label(reason, "unspecified")).Inc()
}

func label(value, fallback string) string {
	if value = strings.TrimSpace(value); value == "" {
		return fallback
	}
	return value
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
