package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Collector tracks live metrics using atomic counters for lock-free,
// concurrent-safe updates. It provides an in-memory real-time view of
// dispatch throughput, routing failures, cache performance, and answer
// token volume.
type Collector struct {
	totalRequests  int64
	noRoute        int64
	upstreamErrors int64
	answerTokens   int64

	cacheHits   int64
	cacheMisses int64

	activeRequests int64

	startTime time.Time

	agentRequests *counterVec   // labels: agent, model, status
	noRouteVec    *counterVec   // labels: model
	latency       *histogramVec // labels: model

	modelWeight       *gaugeVec // labels: model
	modelActiveAgents *gaugeVec // labels: model
}

// Stats is a point-in-time snapshot of the collector's counters,
// suitable for JSON serialisation.
type Stats struct {
	Uptime         string  `json:"uptime"`
	TotalRequests  int64   `json:"total_requests"`
	NoRoute        int64   `json:"no_route"`
	UpstreamErrors int64   `json:"upstream_errors"`
	AnswerTokens   int64   `json:"answer_tokens"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	CacheHits      int64   `json:"cache_hits"`
	CacheMisses    int64   `json:"cache_misses"`
	ActiveRequests int64   `json:"active_requests"`
}

// NewCollector creates a new Collector with all counters initialised to
// zero and the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		startTime:         time.Now(),
		agentRequests:     newCounterVec(),
		noRouteVec:        newCounterVec(),
		latency:           newHistogramVec(nil),
		modelWeight:       newGaugeVec(),
		modelActiveAgents: newGaugeVec(),
	}
}

// RecordRequest atomically updates all counters for a completed dispatch.
func (c *Collector) RecordRequest(agent, model string, statusCode int, cacheHit bool, latency time.Duration, tokens int) {
	atomic.AddInt64(&c.totalRequests, 1)
	atomic.AddInt64(&c.answerTokens, int64(tokens))

	if cacheHit {
		atomic.AddInt64(&c.cacheHits, 1)
	} else {
		atomic.AddInt64(&c.cacheMisses, 1)
	}

	c.agentRequests.Inc(map[string]string{
		"agent":  agent,
		"model":  model,
		"status": strconv.Itoa(statusCode),
	})
	c.latency.Observe(map[string]string{"model": model}, latency.Seconds())
}

// RecordNoRoute counts a request that found no eligible agent for its model.
func (c *Collector) RecordNoRoute(model string) {
	atomic.AddInt64(&c.noRoute, 1)
	c.noRouteVec.Inc(map[string]string{"model": model})
}

// RecordUpstreamError counts a dispatch that reached an agent but failed
// upstream.
func (c *Collector) RecordUpstreamError() {
	atomic.AddInt64(&c.upstreamErrors, 1)
}

// IncrementActive increments the active request counter. Call this when a
// request enters the dispatch path.
func (c *Collector) IncrementActive() {
	atomic.AddInt64(&c.activeRequests, 1)
}

// DecrementActive decrements the active request counter. Call this when a
// request leaves the dispatch path (regardless of success or failure).
func (c *Collector) DecrementActive() {
	atomic.AddInt64(&c.activeRequests, -1)
}

// SetModelGauges replaces the per-model pool gauges. Called after each
// successful pool refresh; weights holds total enabled weight per model
// and active holds the enabled agent count per model.
func (c *Collector) SetModelGauges(weights map[string]int64, active map[string]int) {
	c.modelWeight.Reset()
	c.modelActiveAgents.Reset()
	for model, w := range weights {
		c.modelWeight.Set(map[string]string{"model": model}, float64(w))
	}
	for model, n := range active {
		c.modelActiveAgents.Set(map[string]string{"model": model}, float64(n))
	}
}

// Stats returns a point-in-time snapshot of all scalar metrics.
func (c *Collector) Stats() *Stats {
	hits := atomic.LoadInt64(&c.cacheHits)
	misses := atomic.LoadInt64(&c.cacheMisses)

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return &Stats{
		Uptime:         formatDuration(time.Since(c.startTime)),
		TotalRequests:  atomic.LoadInt64(&c.totalRequests),
		NoRoute:        atomic.LoadInt64(&c.noRoute),
		UpstreamErrors: atomic.LoadInt64(&c.upstreamErrors),
		AnswerTokens:   atomic.LoadInt64(&c.answerTokens),
		CacheHitRate:   hitRate,
		CacheHits:      hits,
		CacheMisses:    misses,
		ActiveRequests: atomic.LoadInt64(&c.activeRequests),
	}
}

// AgentRequests returns the per-agent request counter family.
func (c *Collector) AgentRequests() *counterVec {
	return c.agentRequests
}

// NoRouteByModel returns the no-route counter family.
func (c *Collector) NoRouteByModel() *counterVec {
	return c.noRouteVec
}

// Latency returns the per-model dispatch latency histogram family.
func (c *Collector) Latency() *histogramVec {
	return c.latency
}

// formatDuration produces a human-readable duration string like "2d 5h 32m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	s := ""
	if days > 0 {
		s = strconv.Itoa(days) + "d"
	}
	if hours > 0 {
		if s != "" {
			s += " "
		}
		s += strconv.Itoa(hours) + "h"
	}
	if minutes > 0 {
		if s != "" {
			s += " "
		}
		s += strconv.Itoa(minutes) + "m"
	}
	if s == "" {
		return "0m"
	}
	return s
}
