/*
metrics.go - Prometheus instrumentation for the ledger write path

PURPOSE:
  Counters and histograms for payments, reversals, edits and the ledger
  audit. Every metric is registered against an injected Registerer so tests
  can use a private registry. A nil *Metrics is valid and records nothing.

SEE ALSO:
  - rental/service.go: write path instrumentation
  - api/scheduler.go: audit instrumentation
*/
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rcms"

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// Write path
	PaymentsRecorded    *prometheus.CounterVec
	PaymentsReversed    prometheus.Counter
	PaymentsEdited      prometheus.Counter
	Rejections          *prometheus.CounterVec
	UnabsorbedReversals prometheus.Counter
	AllocationDuration  *prometheus.HistogramVec

	// Replay / audit
	CorruptAllocations prometheus.Counter
	DuplicateReversals prometheus.Counter
	AuditRuns          prometheus.Counter
	AuditDuration      prometheus.Histogram
	TenantsAudited     prometheus.Gauge
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PaymentsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Total number of payments recorded, by method",
		}, []string{"method"}),
		PaymentsReversed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_reversed_total",
			Help:      "Total number of reversal rows written",
		}),
		PaymentsEdited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_edited_total",
			Help:      "Total number of payment edits",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Write requests rejected by a business rule, by code",
		}, []string{"code"}),
		UnabsorbedReversals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unabsorbed_reversals_total",
			Help:      "Reversals persisted with a non-zero shortfall",
		}),
		AllocationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_duration_seconds",
			Help:      "Histogram of snapshot-plan-write durations, by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		CorruptAllocations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrupt_allocations_total",
			Help:      "Payment rows skipped during replay because the allocation could not be parsed",
		}),
		DuplicateReversals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_reversals_total",
			Help:      "Reversal rows ignored during replay because the target was already reversed",
		}),
		AuditRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_runs_total",
			Help:      "Total number of ledger audit passes",
		}),
		AuditDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_duration_seconds",
			Help:      "Histogram of ledger audit pass durations",
			Buckets:   prometheus.DefBuckets,
		}),
		TenantsAudited: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_tenants",
			Help:      "Tenants replayed by the last audit pass",
		}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// =============================================================================
// RECORDING HELPERS
// =============================================================================

func (m *Metrics) PaymentRecorded(method string) {
	if m == nil {
		return
	}
	m.PaymentsRecorded.WithLabelValues(method).Inc()
}

func (m *Metrics) PaymentReversed(unabsorbed bool) {
	if m == nil {
		return
	}
	m.PaymentsReversed.Inc()
	if unabsorbed {
		m.UnabsorbedReversals.Inc()
	}
}

func (m *Metrics) PaymentEdited() {
	if m == nil {
		return
	}
	m.PaymentsEdited.Inc()
}

func (m *Metrics) Rejected(code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(code).Inc()
}

// ObserveAllocation records how long an operation held the tenant.
func (m *Metrics) ObserveAllocation(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.AllocationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Skipped counts rows that replay refused to apply.
func (m *Metrics) Skipped(corrupt, duplicate int) {
	if m == nil {
		return
	}
	m.CorruptAllocations.Add(float64(corrupt))
	m.DuplicateReversals.Add(float64(duplicate))
}

func (m *Metrics) AuditCompleted(tenants int, started time.Time) {
	if m == nil {
		return
	}
	m.AuditRuns.Inc()
	m.TenantsAudited.Set(float64(tenants))
	m.AuditDuration.Observe(time.Since(started).Seconds())
}
