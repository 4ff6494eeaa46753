// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recast"

// Stage outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeReverted = "reverted"
	OutcomeSkipped  = "skipped"
)

// Metrics holds the pipeline's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	stageRuns       *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	posts           *prometheus.CounterVec
	retries         *prometheus.CounterVec
	runs            *prometheus.CounterVec
	unitsGenerated  *prometheus.CounterVec
	violations      *prometheus.CounterVec
	linkCacheLookup *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
// alongside the Go and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.stageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Transform stage executions by outcome",
		},
		[]string{"stage", "outcome"},
	)
	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Transform stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	m.posts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Published items by platform and result",
		},
		[]string{"platform", "result"},
	)
	m.retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_retries_total",
			Help:      "Rate limited publish attempts that were retried",
		},
		[]string{"platform"},
	)
	m.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status",
		},
		[]string{"status"},
	)
	m.unitsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_generated_total",
			Help:      "Units produced by content type",
		},
		[]string{"content_type"},
	)
	m.violations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "constraint_violations_total",
			Help:      "Budget violations repaired by the validator",
		},
		[]string{"content_type", "field"},
	)
	m.linkCacheLookup = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_cache_lookups_total",
			Help:      "Link metadata cache lookups by result",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stageRuns,
		m.stageDuration,
		m.posts,
		m.retries,
		m.runs,
		m.unitsGenerated,
		m.violations,
		m.linkCacheLookup,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObservePost records one published or failed item.
func (m *Metrics) ObservePost(platform string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.posts.WithLabelValues(platform, result).Inc()
}

// ObserveRetry records a rate limited attempt that will be retried.
func (m *Metrics) ObserveRetry(platform string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(platform).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

// ObserveUnit records a generated unit.
func (m *Metrics) ObserveUnit(contentType string) {
	if m == nil {
		return
	}
	m.unitsGenerated.WithLabelValues(contentType).Inc()
}

// ObserveViolation records a repaired budget violation.
func (m *Metrics) ObserveViolation(contentType, field string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(contentType, field).Inc()
}

// ObserveCacheLookup records a link cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.linkCacheLookup.WithLabelValues(result).Inc()
}
