// Package metric provides Prometheus metrics for tokenkeeper.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sizer reports how many records a store currently holds.
type Sizer interface {
	Len() int
}

// Collector reports the number of stored token records on each scrape.
type Collector struct {
	source  Sizer
	backend string
	desc    *prometheus.Desc
}

// NewCollector creates a collector for the given store.
func NewCollector(backend string, source Sizer) *Collector {
	return &Collector{
		source:  source,
		backend: backend,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "records"),
			"Token records currently held by the store, including expired ones awaiting sweep.",
			[]string{"backend"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(c.source.Len()), c.backend)
}
