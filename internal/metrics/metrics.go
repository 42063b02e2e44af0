package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "rentaltax"

// Collector is a prometheus.Collector for calculation and store activity.
type Collector struct {
	calculations    *prometheus.CounterVec
	persistFailures prometheus.Counter
	storeFailures   *prometheus.CounterVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		calculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "calculations_total",
				Help:      "The number of successful tax calculations.",
			}, []string{"category"},
		),
		persistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "persist_failures_total",
				Help:      "The number of calculations answered without being stored.",
			},
		),
		storeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "store_failures_total",
				Help:      "The number of failed record store operations.",
			}, []string{"operation"},
		),
	}
}

// CalculationSucceeded counts a computed quote for category.
func (c *Collector) CalculationSucceeded(category string) {
	c.calculations.WithLabelValues(category).Inc()
}

// PersistFailed counts a computed quote that was answered without being
// stored, whether or not the store was called.
func (c *Collector) PersistFailed() {
	c.persistFailures.Inc()
}

// StoreFailed counts a failed store operation.
func (c *Collector) StoreFailed(operation string) {
	c.storeFailures.WithLabelValues(operation).Inc()
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.calculations.Describe(ch)
	c.persistFailures.Describe(ch)
	c.storeFailures.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.calculations.Collect(ch)
	c.persistFailures.Collect(ch)
	c.storeFailures.Collect(ch)
}
