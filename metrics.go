package remparo

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EndpointStat is a per-endpoint aggregate: request count and running
// average latency in seconds.
type EndpointStat struct {
	Path       string
	Count      int64
	AvgLatency float64
}

// Snapshot is a point-in-time copy of the collected aggregates.
type Snapshot struct {
	TotalRequests   int64
	TotalErrors     int64
	ErrorRate       float64
	AvgResponseTime float64 // mean of the recent-latency buffer, seconds
	StatusCodes     map[int]int64
	TopEndpoints    []EndpointStat // at most 10, by count descending
}

type endpointStat struct {
	count int64
	avg   float64
	order int // first-seen ordinal, tiebreak for TopEndpoints
}

// Collector records per-operation latency and status outcomes and keeps
// running aggregates for observability. Optionally mirrors them into
// Prometheus. Safe for concurrent use.
type Collector struct {
	mu          sync.Mutex
	total       int64
	errors      int64
	latencies   []float64 // ring buffer, capacity fixed at construction
	next        int
	count       int
	statusCodes map[int]int64
	endpoints   map[string]*endpointStat
	seen        int

	prom *promMetrics
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithLatencyBufferSize sets the recent-latency ring capacity (default 1000).
func WithLatencyBufferSize(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.latencies = make([]float64, n)
		}
	}
}

// WithRegisterer mirrors the aggregates into Prometheus metrics registered
// on reg.
func WithRegisterer(reg prometheus.Registerer) CollectorOption {
	return func(c *Collector) {
		c.prom = newPromMetrics(reg)
	}
}

// NewCollector creates a metrics collector with a 1000-entry recent-latency
// buffer. Prometheus export is off unless WithRegisterer is supplied.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		latencies:   make([]float64, 1000),
		statusCodes: make(map[int]int64),
		endpoints:   make(map[string]*endpointStat),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record registers one completed unit of work. Status codes >= 400 count as
// errors. The per-endpoint average is updated incrementally, never
// recomputed from history.
func (c *Collector) Record(endpoint string, duration time.Duration, statusCode int) {
	seconds := duration.Seconds()

	c.mu.Lock()
	c.total++
	if statusCode >= 400 {
		c.errors++
	}

	c.latencies[c.next] = seconds
	c.next = (c.next + 1) % len(c.latencies)
	if c.count < len(c.latencies) {
		c.count++
	}

	c.statusCodes[statusCode]++

	stat, ok := c.endpoints[endpoint]
	if !ok {
		stat = &endpointStat{order: c.seen}
		c.seen++
		c.endpoints[endpoint] = stat
	}
	stat.count++
	stat.avg = (stat.avg*float64(stat.count-1) + seconds) / float64(stat.count)
	c.mu.Unlock()

	if c.prom != nil {
		c.prom.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
		c.prom.requestDuration.WithLabelValues(endpoint).Observe(seconds)
	}
}

// RecordRateLimited increments the rejected-request counter for a class.
func (c *Collector) RecordRateLimited(class EndpointClass) {
	if c.prom != nil {
		c.prom.rateLimitedTotal.WithLabelValues(string(class)).Inc()
	}
}

// RecordCircuitState publishes the breaker state gauge
// (0=closed, 1=open, 2=half-open).
func (c *Collector) RecordCircuitState(name string, state CircuitState) {
	if c.prom != nil {
		c.prom.circuitState.WithLabelValues(name).Set(float64(state))
	}
}

// RecordTimeout increments the timed-out operation counter.
func (c *Collector) RecordTimeout(endpoint string) {
	if c.prom != nil {
		c.prom.timeoutsTotal.WithLabelValues(endpoint).Inc()
	}
}

// RecordCacheStats publishes cache hit/miss/size gauges from a stats copy.
func (c *Collector) RecordCacheStats(name string, stats CacheStats) {
	if c.prom != nil {
		c.prom.cacheHits.WithLabelValues(name).Set(float64(stats.Hits))
		c.prom.cacheMisses.WithLabelValues(name).Set(float64(stats.Misses))
		c.prom.cacheSize.WithLabelValues(name).Set(float64(stats.Entries))
	}
}

// Snapshot returns an independent copy of the aggregates: totals, error
// rate, mean of the recent-latency buffer, status-code counts and the top
// 10 endpoints by request count (ties broken by first-seen order).
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		TotalRequests: c.total,
		TotalErrors:   c.errors,
		StatusCodes:   make(map[int]int64, len(c.statusCodes)),
	}

	if c.total > 0 {
		snap.ErrorRate = float64(c.errors) / float64(c.total)
	}

	if c.count > 0 {
		sum := 0.0
		for i := 0; i < c.count; i++ {
			sum += c.latencies[i]
		}
		snap.AvgResponseTime = sum / float64(c.count)
	}

	for code, n := range c.statusCodes {
		snap.StatusCodes[code] = n
	}

	stats := make([]EndpointStat, 0, len(c.endpoints))
	orders := make(map[string]int, len(c.endpoints))
	for path, stat := range c.endpoints {
		stats = append(stats, EndpointStat{Path: path, Count: stat.count, AvgLatency: stat.avg})
		orders[path] = stat.order
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return orders[stats[i].Path] < orders[stats[j].Path]
	})
	if len(stats) > 10 {
		stats = stats[:10]
	}
	snap.TopEndpoints = stats

	return snap
}

// promMetrics mirrors the collector's aggregates into Prometheus.
type promMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateLimitedTotal *prometheus.CounterVec
	circuitState     *prometheus.GaugeVec
	timeoutsTotal    *prometheus.CounterVec
	cacheHits        *prometheus.GaugeVec
	cacheMisses      *prometheus.GaugeVec
	cacheSize        *prometheus.GaugeVec
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	return &promMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "remparo_requests_total",
				Help: "Total number of completed requests",
			},
			[]string{"endpoint", "status_code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remparo_request_duration_seconds",
				Help:    "Duration of completed requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		rateLimitedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "remparo_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"class"},
		),
		circuitState: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "remparo_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		timeoutsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "remparo_timeouts_total",
				Help: "Total number of operations that exceeded their timeout",
			},
			[]string{"endpoint"},
		),
		cacheHits: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "remparo_cache_hits",
				Help: "Cumulative cache hits as last published",
			},
			[]string{"name"},
		),
		cacheMisses: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "remparo_cache_misses",
				Help: "Cumulative cache misses as last published",
			},
			[]string{"name"},
		),
		cacheSize: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "remparo_cache_size",
				Help: "Current number of entries in cache",
			},
			[]string{"name"},
		),
	}
}
