// Package observability holds the process-wide prometheus collectors for
// grid jobs, the coverage cache, the HTTP API and the invalidation consumer.
package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	jobsTotal            *prometheus.CounterVec
	jobDurationSeconds   *prometheus.HistogramVec
	stageDurationSeconds *prometheus.HistogramVec
	tilesTotal           *prometheus.CounterVec
	waysTotal            *prometheus.CounterVec

	cacheOpTotal          *prometheus.CounterVec
	redisOpDurationSecond *prometheus.HistogramVec
	cacheResults          *prometheus.CounterVec

	invalidationsTotal     *prometheus.CounterVec
	invalidationLagSeconds prometheus.Gauge

	buildInfo *prometheus.GaugeVec
}

var current atomic.Pointer[collectors]

func newCollectors() *collectors {
	return &collectors{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
			},
			[]string{"method", "route", "status"},
		),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_jobs_total",
				Help: "Grid jobs by strategy, zoom and result.",
			},
			[]string{"strategy", "zoom", "result"},
		),
		jobDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grid_job_duration_seconds",
				Help:    "End-to-end duration of one grid job.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
			},
			[]string{"zoom"},
		),
		stageDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grid_stage_duration_seconds",
				Help:    "Duration of a pipeline stage (cover, grid, graph, write).",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"stage"},
		),
		tilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_tiles_total",
				Help: "Tiles produced by coverage, per zoom.",
			},
			[]string{"zoom"},
		),
		waysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_ways_total",
				Help: "Grid ways emitted, per zoom.",
			},
			[]string{"zoom"},
		),
		cacheOpTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_op_total",
				Help: "Redis operations by op and result.",
			},
			[]string{"op", "result"},
		),
		redisOpDurationSecond: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redis_operation_duration_seconds",
				Help:    "Latency of redis operations.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"op"},
		),
		cacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_results_total",
				Help: "Coverage cache lookups by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		),
		invalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invalidation_events_total",
				Help: "Region invalidation events by op and result.",
			},
			[]string{"op", "result"},
		),
		invalidationLagSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "invalidation_lag_seconds",
				Help: "Approximate lag: now - message.timestamp.",
			},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "grid_build_info",
				Help: "Build information for the binary.",
			},
			[]string{"version"},
		),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.httpRequestsTotal, c.httpRequestDurationSeconds,
		c.jobsTotal, c.jobDurationSeconds, c.stageDurationSeconds, c.tilesTotal, c.waysTotal,
		c.cacheOpTotal, c.redisOpDurationSecond, c.cacheResults,
		c.invalidationsTotal, c.invalidationLagSeconds,
		c.buildInfo,
	}
}

// Init creates a fresh collector set and registers it on reg. With enabled
// false every Observe/Add call becomes a no-op.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled {
		current.Store(nil)
		return
	}
	c := newCollectors()
	if reg != nil {
		reg.MustRegister(c.all()...)
	}
	current.Store(c)
}

func load() *collectors { return current.Load() }

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	c := load()
	if c == nil {
		return
	}
	st := strconv.Itoa(status)
	c.httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	c.httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveJob(strategy string, zoom int, err error, durationSeconds float64) {
	c := load()
	if c == nil {
		return
	}
	z := strconv.Itoa(zoom)
	c.jobsTotal.WithLabelValues(strategy, z, result(err)).Inc()
	c.jobDurationSeconds.WithLabelValues(z).Observe(durationSeconds)
}

func ObserveStage(stage string, durationSeconds float64) {
	if c := load(); c != nil {
		c.stageDurationSeconds.WithLabelValues(stage).Observe(durationSeconds)
	}
}

func AddTiles(zoom, n int) {
	if c := load(); c != nil && n > 0 {
		c.tilesTotal.WithLabelValues(strconv.Itoa(zoom)).Add(float64(n))
	}
}

func AddWays(zoom, n int) {
	if c := load(); c != nil && n > 0 {
		c.waysTotal.WithLabelValues(strconv.Itoa(zoom)).Add(float64(n))
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	c := load()
	if c == nil {
		return
	}
	c.cacheOpTotal.WithLabelValues(op, result(err)).Inc()
	c.redisOpDurationSecond.WithLabelValues(op).Observe(durationSeconds)
}

// AddCacheHits counts hits in the redis tier.
func AddCacheHits(n int) { addCacheResult("redis", "hit", n) }

// AddCacheMisses counts misses in the redis tier.
func AddCacheMisses(n int) { addCacheResult("redis", "miss", n) }

func IncCacheHit(tier string)  { addCacheResult(tier, "hit", 1) }
func IncCacheMiss(tier string) { addCacheResult(tier, "miss", 1) }

func addCacheResult(tier, outcome string, n int) {
	if c := load(); c != nil && n > 0 {
		c.cacheResults.WithLabelValues(tier, outcome).Add(float64(n))
	}
}

// ObserveInvalidation records one handled event; result is "ok", "error" or
// "skip_version".
func ObserveInvalidation(op, res string) {
	if op == "" {
		op = "unknown"
	}
	if c := load(); c != nil {
		c.invalidationsTotal.WithLabelValues(op, res).Inc()
	}
}

func SetInvalidationLagSeconds(v float64) {
	if c := load(); c != nil {
		c.invalidationLagSeconds.Set(v)
	}
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	if c := load(); c != nil {
		c.buildInfo.WithLabelValues(version).Set(1)
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
