package build

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes build service counters on the shared Prometheus registry.
type Metrics struct {
	started       *prom.CounterVec
	outcomes      *prom.CounterVec
	cacheResults  *prom.CounterVec
	buildDuration prom.Histogram
	queueRejected prom.Counter
	expired       prom.Counter
}

// NewMetrics constructs and registers the build metrics.
func NewMetrics(reg *prom.Registry) *Metrics {
	m := &Metrics{
		started: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "makevia",
			Name:      "builds_started_total",
			Help:      "Builds dispatched for execution, by build type",
		}, []string{"build_type"}),
		outcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "makevia",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		cacheResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "makevia",
			Name:      "build_cache_results_total",
			Help:      "Cache lookup results",
		}, []string{"result"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "makevia",
			Name:      "build_duration_seconds",
			Help:      "Wall-clock duration from dispatch to completion",
			Buckets:   []float64{30, 60, 120, 300, 600, 900, 1200, 1800},
		}),
		queueRejected: prom.NewCounter(prom.CounterOpts{
			Namespace: "makevia",
			Name:      "build_queue_rejections_total",
			Help:      "Build requests rejected because the queue was full",
		}),
		expired: prom.NewCounter(prom.CounterOpts{
			Namespace: "makevia",
			Name:      "builds_expired_total",
			Help:      "Builds expired by the retention janitor",
		}),
	}
	reg.MustRegister(m.started, m.outcomes, m.cacheResults, m.buildDuration,
		m.queueRejected, m.expired)
	return m
}

func (m *Metrics) BuildStarted(buildType BuildType) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(string(buildType)).Inc()
}

func (m *Metrics) BuildFinished(outcome Status, d time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(outcome)).Inc()
	m.buildDuration.Observe(d.Seconds())
}

func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.cacheResults.WithLabelValues(result).Inc()
}

func (m *Metrics) QueueRejected() {
	if m == nil {
		return
	}
	m.queueRejected.Inc()
}

func (m *Metrics) BuildsExpired(n int) {
	if m == nil {
		return
	}
	m.expired.Add(float64(n))
}
