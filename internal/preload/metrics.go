package preload

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "preloadd",
			Subsystem: "load",
			Name:      "duration_seconds",
			Help:      "Duration of image loads keyed by logical identifier",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"image"},
	)

	slowLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "preloadd",
			Subsystem: "load",
			Name:      "slow_total",
			Help:      "Loads slower than the configured slow-load threshold",
		},
		[]string{"image"},
	)

	loadErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "preloadd",
			Subsystem: "load",
			Name:      "errors_total",
			Help:      "Failed image loads by error kind",
		},
		[]string{"kind"},
	)

	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "preloadd",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Preloads answered from the cache without a fetch",
	})

	cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "preloadd",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Preloads that had to fetch",
	})

	cacheCoalescedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "preloadd",
		Subsystem: "cache",
		Name:      "coalesced_total",
		Help:      "Preloads that shared another caller's in-flight fetch",
	})
)

func init() {
	prometheus.MustRegister(loadDuration, slowLoadsTotal, loadErrorsTotal,
		cacheHitsTotal, cacheMissesTotal, cacheCoalescedTotal)
}

// RegisterCacheSize exposes the cache's entry count as a gauge. Call once per
// process (daemon main); tests constructing throwaway caches skip it.
func RegisterCacheSize(c *Cache) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "preloadd",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Completed entries currently cached",
	}, func() float64 { return float64(c.Size()) }))
}

// MetricsSink consumes load-duration observations and failure reports from
// loaders. The loader never inspects results; implementations must not
// block.
type MetricsSink interface {
	ObserveLoadDuration(image string, d time.Duration)
	CountSlowLoad(image string)
	RecordError(err error, context map[string]string)
}

// NoopSink drops all observations.
type NoopSink struct{}

func (NoopSink) ObserveLoadDuration(string, time.Duration) {}
func (NoopSink) CountSlowLoad(string)                      {}
func (NoopSink) RecordError(error, map[string]string)      {}

// PromSink records observations into the package's Prometheus collectors.
type PromSink struct{}

func (PromSink) ObserveLoadDuration(image string, d time.Duration) {
	loadDuration.WithLabelValues(image).Observe(d.Seconds())
}

func (PromSink) CountSlowLoad(image string) {
	slowLoadsTotal.WithLabelValues(image).Inc()
}

func (PromSink) RecordError(err error, _ map[string]string) {
	kind := "fetch"
	switch {
	case IsConstruction(err):
		kind = "construction"
	case IsTooManyInflight(err):
		kind = "backpressure"
	}
	loadErrorsTotal.WithLabelValues(kind).Inc()
}
