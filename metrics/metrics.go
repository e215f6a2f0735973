// Package metrics exports kv.Store activity to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adeilh/omnikv/kv"
)

const DefaultNamespace = "omnikv"

// Collector implements kv.Observer and prometheus.Collector. Pass it to
// kv.WithObserver and register it once.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	expired    prometheus.Counter
}

var (
	_ kv.Observer          = (*Collector)(nil)
	_ prometheus.Collector = (*Collector)(nil)
)

func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Store operations by operation and result",
			}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Histogram of store operation duration",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
		expired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expired_total",
				Help:      "Expired entries purged on access or by a sweep",
			}),
	}
}

// Register adds c to reg, or to the default registry when reg is nil.
func (c *Collector) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return reg.Register(c)
}

func (c *Collector) ObserveOperation(op, result string, elapsed time.Duration) {
	c.operations.WithLabelValues(op, result).Inc()
	c.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveExpired(n int) {
	if n > 0 {
		c.expired.Add(float64(n))
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	c.duration.Describe(ch)
	c.expired.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	c.duration.Collect(ch)
	c.expired.Collect(ch)
}
