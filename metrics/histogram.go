package metrics

import (
	"math"
	"sort"
	"sync"
)

// DefaultBuckets mirrors the teacher's reach for prometheus.DefBuckets: a
// general-purpose latency ladder in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// DefaultSampleCap bounds how many raw observations a Histogram retains for
// Percentile queries. Older samples are evicted FIFO once the cap is hit;
// bucket counts and sum/count are never capped.
const DefaultSampleCap = 2000

// Histogram records observations into fixed buckets (cumulative, +Inf
// implicit) and separately retains a bounded sample window for percentile
// interpolation.
type Histogram struct {
	name    string
	help    string
	buckets []float64 // sorted ascending upper bounds

	sampleCap int

	mu     sync.Mutex
	points map[string]*histogramPoint
}

type histogramPoint struct {
	labels  Labels
	counts  []uint64 // len(buckets)+1, last is +Inf
	sum     float64
	count   uint64
	samples []float64
	next    int
}

func newHistogram(name, help string, buckets []float64, sampleCap int) *Histogram {
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	if sampleCap <= 0 {
		sampleCap = DefaultSampleCap
	}
	return &Histogram{
		name:      name,
		help:      help,
		buckets:   sorted,
		sampleCap: sampleCap,
		points:    make(map[string]*histogramPoint),
	}
}

// Observe records v into the smallest bucket whose upper bound is >= v
// (plus +Inf), and appends it to the percentile sample window.
func (h *Histogram) Observe(v float64, labels Labels) {
	key := labels.key()
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.points[key]
	if !ok {
		p = &histogramPoint{
			labels:  labels.clone(),
			counts:  make([]uint64, len(h.buckets)+1),
			samples: make([]float64, 0, h.sampleCap),
		}
		h.points[key] = p
	}

	idx := sort.SearchFloat64s(h.buckets, v)
	for i := idx; i < len(p.counts); i++ {
		p.counts[i]++
	}
	p.sum += v
	p.count++

	if len(p.samples) < h.sampleCap {
		p.samples = append(p.samples, v)
	} else {
		p.samples[p.next] = v
		p.next = (p.next + 1) % h.sampleCap
	}
}

// Percentile interpolates the p-th percentile (0..100) over the retained
// sample window for a label combination. Returns 0 if no samples exist.
func (h *Histogram) Percentile(p float64, labels Labels) float64 {
	key := labels.key()
	h.mu.Lock()
	pt, ok := h.points[key]
	if !ok || len(pt.samples) == 0 {
		h.mu.Unlock()
		return 0
	}
	samples := append([]float64(nil), pt.samples...)
	h.mu.Unlock()

	sort.Float64s(samples)
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}

	rank := (p / 100) * float64(len(samples)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return samples[lo]
	}
	frac := rank - float64(lo)
	return samples[lo] + frac*(samples[hi]-samples[lo])
}

type histogramSnapshotPoint struct {
	labels  Labels
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func (h *Histogram) snapshot() []histogramSnapshotPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]histogramSnapshotPoint, 0, len(h.points))
	for _, p := range h.points {
		out = append(out, histogramSnapshotPoint{
			labels:  p.labels.clone(),
			buckets: h.buckets,
			counts:  append([]uint64(nil), p.counts...),
			sum:     p.sum,
			count:   p.count,
		})
	}
	return out
}
