// internal/utils/metrics/collector.go
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solana_bundler"

// Статусы бандлов в метриках
const (
	BundleLanded    = "landed"
	BundleFailed    = "failed"
	BundleCancelled = "cancelled"
)

// Collector держит метрики бандлера в собственном реестре.
// Все методы допускают nil-получатель: метрики необязательны.
type Collector struct {
	registry *prometheus.Registry

	bundleCounter       *prometheus.CounterVec
	bundleDuration      *prometheus.HistogramVec
	rpcLatency          *prometheus.HistogramVec
	distributionRuns    *prometheus.CounterVec
	recipientsPaid      prometheus.Counter
	lamportsDistributed prometheus.Counter
}

// NewCollector создает новый экземпляр коллектора метрик
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bundleCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bundles_total",
				Help:      "Total number of bundles submitted to the block engine",
			},
			[]string{"status"},
		),
		bundleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bundle_duration_seconds",
				Help:      "Time from sendBundle to terminal bundle status",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"status"},
		),
		rpcLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_latency_seconds",
				Help:      "RPC request latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"method", "endpoint"},
		),
		distributionRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "distribution_runs_total",
				Help:      "Distribution runs by final state",
			},
			[]string{"state"},
		),
		recipientsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recipients_paid_total",
			Help:      "Recipients covered by landed distribution bundles",
		}),
		lamportsDistributed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lamports_distributed_total",
			Help:      "Lamports transferred by completed distribution runs",
		}),
	}

	c.registry.MustRegister(
		c.bundleCounter,
		c.bundleDuration,
		c.rpcLatency,
		c.distributionRuns,
		c.recipientsPaid,
		c.lamportsDistributed,
	)
	return c
}

// Registry возвращает реестр коллектора.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler отдает метрики в формате Prometheus.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordBundle записывает результат бандла с учетом контекста
func (c *Collector) RecordBundle(ctx context.Context, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	select {
	case <-ctx.Done():
		c.bundleCounter.WithLabelValues(BundleCancelled).Inc()
		return
	default:
	}

	status := BundleLanded
	if !success {
		status = BundleFailed
	}
	c.bundleCounter.WithLabelValues(status).Inc()
	c.bundleDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRPCLatency записывает метрики RPC-запроса
func (c *Collector) RecordRPCLatency(method, endpoint string, duration time.Duration) {
	if c == nil {
		return
	}
	c.rpcLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDistribution записывает итог прогона распределения.
func (c *Collector) RecordDistribution(state string, recipients int, lamports uint64) {
	if c == nil {
		return
	}
	c.distributionRuns.WithLabelValues(state).Inc()
	c.recipientsPaid.Add(float64(recipients))
	c.lamportsDistributed.Add(float64(lamports))
}
