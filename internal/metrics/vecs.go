package metrics

import (
	"sort"
	"sync"
)

// counterVec is a mutex-guarded labeled counter family. Label cardinality
// here is bounded by the agent document, so a plain map is fine.
type counterVec struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
}

type counterEntry struct {
	labels map[string]string
	value  int64
}

func newCounterVec() *counterVec {
	return &counterVec{entries: make(map[string]*counterEntry)}
}

// Inc increments the counter for the given label set by 1.
func (cv *counterVec) Inc(labels map[string]string) {
	cv.Add(labels, 1)
}

// Add increments the counter for the given label set by delta.
func (cv *counterVec) Add(labels map[string]string, delta int64) {
	key := labelKey(labels)
	cv.mu.Lock()
	defer cv.mu.Unlock()
	e, ok := cv.entries[key]
	if !ok {
		e = &counterEntry{labels: copyLabels(labels)}
		cv.entries[key] = e
	}
	e.value += delta
}

// snapshot returns the entries sorted by label key for stable output.
func (cv *counterVec) snapshot() []*counterEntry {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	keys := make([]string, 0, len(cv.entries))
	for k := range cv.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*counterEntry, 0, len(keys))
	for _, k := range keys {
		e := cv.entries[k]
		out = append(out, &counterEntry{labels: e.labels, value: e.value})
	}
	return out
}

// gaugeVec is a mutex-guarded labeled gauge family.
type gaugeVec struct {
	mu      sync.Mutex
	entries map[string]*gaugeEntry
}

type gaugeEntry struct {
	labels map[string]string
	value  float64
}

func newGaugeVec() *gaugeVec {
	return &gaugeVec{entries: make(map[string]*gaugeEntry)}
}

// Set sets the gauge for the given label set to value.
func (gv *gaugeVec) Set(labels map[string]string, value float64) {
	key := labelKey(labels)
	gv.mu.Lock()
	defer gv.mu.Unlock()
	e, ok := gv.entries[key]
	if !ok {
		e = &gaugeEntry{labels: copyLabels(labels)}
		gv.entries[key] = e
	}
	e.value = value
}

// Reset drops all entries. Used when the pool is replaced so gauges for
// removed models do not linger.
func (gv *gaugeVec) Reset() {
	gv.mu.Lock()
	defer gv.mu.Unlock()
	gv.entries = make(map[string]*gaugeEntry)
}

func (gv *gaugeVec) snapshot() []*gaugeEntry {
	gv.mu.Lock()
	defer gv.mu.Unlock()
	keys := make([]string, 0, len(gv.entries))
	for k := range gv.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*gaugeEntry, 0, len(keys))
	for _, k := range keys {
		e := gv.entries[k]
		out = append(out, &gaugeEntry{labels: e.labels, value: e.value})
	}
	return out
}

// defaultBuckets covers dispatch latencies from sub-second cache hits to
// minute-long grounding runs.
var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// histogramVec is a mutex-guarded labeled histogram family with fixed
// buckets.
type histogramVec struct {
	mu      sync.Mutex
	buckets []float64
	entries map[string]*histogram
}

type histogram struct {
	labels  map[string]string
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

func newHistogramVec(buckets []float64) *histogramVec {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}
	return &histogramVec{
		buckets: buckets,
		entries: make(map[string]*histogram),
	}
}

// Observe records a single observation for the given label set.
func (hv *histogramVec) Observe(labels map[string]string, value float64) {
	key := labelKey(labels)
	hv.mu.Lock()
	defer hv.mu.Unlock()
	h, ok := hv.entries[key]
	if !ok {
		h = &histogram{
			labels:  copyLabels(labels),
			buckets: hv.buckets,
			counts:  make([]int64, len(hv.buckets)),
		}
		hv.entries[key] = h
	}
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
	h.sum += value
	h.count++
}

func (hv *histogramVec) snapshot() []*histogram {
	hv.mu.Lock()
	defer hv.mu.Unlock()
	keys := make([]string, 0, len(hv.entries))
	for k := range hv.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*histogram, 0, len(keys))
	for _, k := range keys {
		h := hv.entries[k]
		counts := make([]int64, len(h.counts))
		copy(counts, h.counts)
		out = append(out, &histogram{
			labels:  h.labels,
			buckets: h.buckets,
			counts:  counts,
			sum:     h.sum,
			count:   h.count,
		})
	}
	return out
}

// labelKey produces a deterministic map key from a label set.
func labelKey(labels map[string]string) string {
	return formatLabels(labels)
}

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
