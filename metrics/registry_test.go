package metrics

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounterIncClampsNegative(t *testing.T) {
	r := NewRegistry()
	c := r.Counter("requests_total", "total requests")
	c.Inc(5, Labels{"route": "/a"})
	c.Inc(-3, Labels{"route": "/a"})
	require.Equal(t, float64(5), c.Value(Labels{"route": "/a"}))
}

func TestGaugeSetIncDec(t *testing.T) {
	r := NewRegistry()
	g := r.Gauge("queue_depth", "depth")
	g.Set(10, nil)
	g.Inc(5, nil)
	g.Dec(2, nil)
	require.Equal(t, float64(13), g.Value(nil))
}

func TestHistogramPercentile(t *testing.T) {
	r := NewRegistry()
	h := r.Histogram("latency_seconds", "latency", []float64{0.1, 0.5, 1})
	for _, v := range []float64{0.05, 0.2, 0.3, 0.9, 1.5} {
		h.Observe(v, nil)
	}
	p50 := h.Percentile(50, nil)
	require.InDelta(t, 0.3, p50, 0.01)
	p100 := h.Percentile(100, nil)
	require.Equal(t, 1.5, p100)
}

func TestHistogramBucketsCumulative(t *testing.T) {
	r := NewRegistry()
	h := r.Histogram("sizes", "", []float64{1, 5})
	h.Observe(0.5, nil)
	h.Observe(3, nil)
	h.Observe(10, nil)

	snap := h.snapshot()[0]
	require.Equal(t, uint64(1), snap.counts[0]) // <=1
	require.Equal(t, uint64(2), snap.counts[1]) // <=5
	require.Equal(t, uint64(3), snap.counts[2]) // +Inf
}

func TestExportJSONRoundTrips(t *testing.T) {
	r := NewRegistry()
	r.Counter("c1", "").Inc(1, Labels{"k": "v"})
	r.Gauge("g1", "").Set(2, nil)
	r.Histogram("h1", "", nil).Observe(0.2, nil)

	data, err := r.Export(FormatJSON)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Contains(t, doc, "counters")
	require.Contains(t, doc, "gauges")
	require.Contains(t, doc, "histograms")
}

func TestExportPrometheusFormat(t *testing.T) {
	r := NewRegistry()
	r.Counter("requests_total", "").Inc(3, Labels{"route": "/x"})

	data, err := r.Export(FormatPrometheus)
	require.NoError(t, err)
	line := string(data)
	require.True(t, strings.HasPrefix(line, `requests_total{route="/x"} 3`))
}

func TestExportUnknownFormat(t *testing.T) {
	r := NewRegistry()
	_, err := r.Export(Format("xml"))
	require.Error(t, err)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Counter("hot", "").Inc(1, Labels{"shard": string(rune('a' + i%5))})
			r.Gauge("hot_gauge", "").Set(float64(i), nil)
		}(i)
	}
	wg.Wait()

	snap := r.Snapshot()
	var total float64
	for _, p := range snap.Counters["hot"] {
		total += p.value
	}
	require.Equal(t, float64(50), total)
}
