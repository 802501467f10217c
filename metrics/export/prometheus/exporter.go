package prometheus

import (
	"net/http"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSource is what the exporter reads on every scrape. *goRecover.Engine
// satisfies it.
type MetricsSource interface {
	MetricsSnapshot() goRecover.MetricsSnapshot
	AuditDropped() uint64
	MailDropped() uint64
	MailFailed() uint64
}

// Collector is a prometheus.Collector that reads engine metrics at scrape
// time. It keeps no state of its own.
type Collector struct {
	source     MetricsSource
	counters   []counterDesc
	histograms []histogramDesc
	queues     [3]*prometheus.Desc
}

type counterDesc struct {
	id   goRecover.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   goRecover.MetricID
	desc *prometheus.Desc
}

func NewCollector(source MetricsSource) *Collector {
	c := &Collector{source: source}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{id: def.ID, desc: prometheus.NewDesc(def.Name, def.Help, nil, nil)})
	}
	c.queues = [3]*prometheus.Desc{
		prometheus.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
		prometheus.NewDesc(internaldefs.MailDroppedName, internaldefs.MailDroppedHelp, nil, nil),
		prometheus.NewDesc(internaldefs.MailFailedName, internaldefs.MailFailedHelp, nil, nil),
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, h := range c.histograms {
		ch <- h.desc
	}
	for _, d := range c.queues {
		ch <- d
	}
}

// Collect emits nothing when the engine has metrics disabled.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	snapshot := c.source.MetricsSnapshot()

	if len(snapshot.Counters) > 0 {
		for _, d := range c.counters {
			ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(snapshot.Counters[d.id]))
		}
	}

	for _, h := range c.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		// The engine does not track a latency sum.
		ch <- prometheus.MustNewConstHistogram(h.desc, cumulative[len(cumulative)-1], 0, buckets)
	}

	values := [3]uint64{c.source.AuditDropped(), c.source.MailDropped(), c.source.MailFailed()}
	for i, d := range c.queues {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(values[i]))
	}
}

// Handler serves the engine's metrics, together with the Go runtime and
// process collectors, from a private registry.
func Handler(source MetricsSource) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(source)); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
