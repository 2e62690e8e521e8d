// Package metrics exposes Prometheus collectors for engine resources.
//
// All methods are safe on a nil *Metrics, so instrumented code does not
// need to check whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric label values.
const (
	resultOK     = "ok"
	resultFailed = "failed"
	lookupHit    = "hit"
	lookupMiss   = "miss"

	DirectionForward = "forward"
	DirectionInverse = "inverse"
)

// Kinds lists the transform family labels.
var Kinds = []string{"c", "r", "nd", "ndr"}

// Metrics groups the collectors of one registry.
type Metrics struct {
	engineInfo        *prometheus.GaugeVec
	allocationsTotal  *prometheus.CounterVec
	planLookupsTotal  *prometheus.CounterVec
	planCacheEntries  prometheus.Gauge
	sessionsActive    *prometheus.GaugeVec
	transformsTotal   *prometheus.CounterVec
	transformDuration *prometheus.HistogramVec
	guestLiveBlocks   prometheus.Gauge
	guestMemoryBytes  prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		engineInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kissfft_engine_info",
				Help: "Engine variant in use (1 for the active variant).",
			},
			[]string{"variant"},
		),
		allocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kissfft_allocations_total",
				Help: "Total number of guest buffer allocation requests.",
			},
			[]string{"result"},
		),
		planLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kissfft_plan_cache_lookups_total",
				Help: "Total number of plan cache lookups by result.",
			},
			[]string{"result"},
		),
		planCacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kissfft_plan_cache_entries",
				Help: "Number of plan pairs stored in the cache.",
			},
		),
		sessionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kissfft_sessions_active",
				Help: "Number of live transform sessions.",
			},
			[]string{"kind"},
		),
		transformsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kissfft_transforms_total",
				Help: "Total number of transforms executed.",
			},
			[]string{"kind", "direction", "result"},
		),
		transformDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kissfft_transform_duration_seconds",
				Help:    "Transform duration including buffer copies, in seconds.",
				Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
			},
			[]string{"kind", "direction"},
		),
		guestLiveBlocks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kissfft_guest_live_blocks",
				Help: "Blocks currently allocated in the guest heap.",
			},
		),
		guestMemoryBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kissfft_guest_memory_bytes",
				Help: "Size of guest linear memory in bytes.",
			},
		),
	}
	reg.MustRegister(
		m.engineInfo,
		m.allocationsTotal,
		m.planLookupsTotal,
		m.planCacheEntries,
		m.sessionsActive,
		m.transformsTotal,
		m.transformDuration,
		m.guestLiveBlocks,
		m.guestMemoryBytes,
	)

	// Pre-initialize label combinations so they appear with value 0.
	for _, r := range []string{resultOK, resultFailed} {
		m.allocationsTotal.WithLabelValues(r)
	}
	for _, r := range []string{lookupHit, lookupMiss} {
		m.planLookupsTotal.WithLabelValues(r)
	}
	for _, k := range Kinds {
		m.sessionsActive.WithLabelValues(k)
	}
	return m
}

// EngineVariant marks variant as the active engine.
func (m *Metrics) EngineVariant(variant string) {
	if m == nil {
		return
	}
	m.engineInfo.Reset()
	m.engineInfo.WithLabelValues(variant).Set(1)
}

// Allocation records one allocation request.
func (m *Metrics) Allocation(ok bool) {
	if m == nil {
		return
	}
	m.allocationsTotal.WithLabelValues(result(ok)).Inc()
}

// PlanLookup records a cache lookup and the resulting cache size.
func (m *Metrics) PlanLookup(hit bool, entries int) {
	if m == nil {
		return
	}
	if hit {
		m.planLookupsTotal.WithLabelValues(lookupHit).Inc()
	} else {
		m.planLookupsTotal.WithLabelValues(lookupMiss).Inc()
	}
	m.planCacheEntries.Set(float64(entries))
}

// PlanCacheSize sets the cache size gauge.
func (m *Metrics) PlanCacheSize(entries int) {
	if m == nil {
		return
	}
	m.planCacheEntries.Set(float64(entries))
}

// SessionOpened increments the live session gauge for kind.
func (m *Metrics) SessionOpened(kind string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(kind).Inc()
}

// SessionClosed decrements the live session gauge for kind.
func (m *Metrics) SessionClosed(kind string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(kind).Dec()
}

// Transform records one transform and its duration.
func (m *Metrics) Transform(kind, direction string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.transformsTotal.WithLabelValues(kind, direction, result(err == nil)).Inc()
	if err == nil {
		m.transformDuration.WithLabelValues(kind, direction).Observe(d.Seconds())
	}
}

// Guest sets the guest heap gauges.
func (m *Metrics) Guest(liveBlocks, memoryBytes uint32) {
	if m == nil {
		return
	}
	m.guestLiveBlocks.Set(float64(liveBlocks))
	m.guestMemoryBytes.Set(float64(memoryBytes))
}

func result(ok bool) string {
	if ok {
		return resultOK
	}
	return resultFailed
}
