package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AsCollector wraps the registry as a prometheus.Collector so it can be
// registered with a real prometheus.Registry and scraped via promhttp,
// the same exposition path the teacher wires in control_plane/main.go.
// This is an additional export path alongside Export(FormatPrometheus);
// the hand-rolled text formatter stays the primary contract because
// client_golang's API has no notion of ad hoc label sets discovered at
// runtime plus a Percentile() query, which spec.md's Metrics Registry
// contract requires.
func (r *Registry) AsCollector() prometheus.Collector {
	return &collectorAdapter{r: r}
}

type collectorAdapter struct {
	r *Registry
}

func (c *collectorAdapter) Describe(ch chan<- *prometheus.Desc) {
	// Dynamic label sets mean descriptors can't be declared up front;
	// client_golang permits an "unchecked" collector that only sends
	// descs during Collect, so Describe intentionally sends nothing.
}

func (c *collectorAdapter) Collect(ch chan<- prometheus.Metric) {
	for name, ctr := range c.r.allCounters() {
		for _, p := range ctr.snapshot() {
			names, values := labelPairs(p.labels)
			desc := prometheus.NewDesc(name, ctr.help, names, nil)
			m, err := prometheus.NewConstMetric(desc, prometheus.CounterValue, p.value, values...)
			if err == nil {
				ch <- m
			}
		}
	}
	for name, g := range c.r.allGauges() {
		for _, p := range g.snapshot() {
			names, values := labelPairs(p.labels)
			desc := prometheus.NewDesc(name, g.help, names, nil)
			m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, p.value, values...)
			if err == nil {
				ch <- m
			}
		}
	}
	for name, h := range c.r.allHistograms() {
		for _, p := range h.snapshot() {
			names, values := labelPairs(p.labels)
			buckets := make(map[float64]uint64, len(p.buckets))
			var cumulative uint64
			for i, upper := range p.buckets {
				cumulative = p.counts[i]
				buckets[upper] = cumulative
			}
			desc := prometheus.NewDesc(name, h.help, names, nil)
			m, err := prometheus.NewConstHistogram(desc, p.count, p.sum, buckets, values...)
			if err == nil {
				ch <- m
			}
		}
	}
}

func labelPairs(l Labels) (names, values []string) {
	names = l.sortedNames()
	values = make([]string, len(names))
	for i, n := range names {
		values[i] = l[n]
	}
	return names, values
}
