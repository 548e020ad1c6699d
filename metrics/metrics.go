// Package metrics exports buffer cache counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mit-pdos/go-bcache/bcache"
)

const namespace = "bcache"

type Collector struct {
	c *bcache.Cache

	hits       *prometheus.Desc
	misses     *prometheus.Desc
	evictions  *prometheus.Desc
	fills      *prometheus.Desc
	fillErrors *prometheus.Desc
	writes     *prometheus.Desc
	bufs       *prometheus.Desc
}

var _ prometheus.Collector = &Collector{}

func NewCollector(c *bcache.Cache) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		c:          c,
		hits:       desc("hits_total", "Lookups that found the block cached."),
		misses:     desc("misses_total", "Lookups that recycled a buffer."),
		evictions:  desc("evictions_total", "Misses that displaced another block."),
		fills:      desc("fills_total", "Device reads issued to fill a buffer."),
		fillErrors: desc("fill_errors_total", "Device reads that failed."),
		writes:     desc("writes_total", "Buffers written to the device."),
		bufs:       desc("buffers", "Number of buffers in the pool."),
	}
}

func (col *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- col.hits
	ch <- col.misses
	ch <- col.evictions
	ch <- col.fills
	ch <- col.fillErrors
	ch <- col.writes
	ch <- col.bufs
}

func (col *Collector) Collect(ch chan<- prometheus.Metric) {
	s := col.c.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(col.hits, s.Hits)
	counter(col.misses, s.Misses)
	counter(col.evictions, s.Evictions)
	counter(col.fills, s.Fills)
	counter(col.fillErrors, s.FillErrors)
	counter(col.writes, s.Writes)
	ch <- prometheus.MustNewConstMetric(col.bufs, prometheus.GaugeValue, float64(col.c.NBuf()))
}
