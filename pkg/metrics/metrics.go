// Package metrics holds the Prometheus collectors of the badge service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "anchorbadge"

// Metrics holds Prometheus metrics for issuance, verification, revocation and auditing.
// Every method is safe to call on a nil *Metrics.
type Metrics struct {
	BadgesIssued      *prometheus.CounterVec
	IssuedScore       prometheus.Histogram
	Verifications     *prometheus.CounterVec
	Revocations       *prometheus.CounterVec
	StoreDuration     *prometheus.HistogramVec
	AuditDropped      prometheus.Counter
	AuditWriteFailure prometheus.Counter
}

// New registers every collector with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		BadgesIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_issued_total",
			Help:      "Total number of badges issued, by clearance tier",
		}, []string{"clearance"}),
		IssuedScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "issued_trust_score",
			Help:      "Trust score carried by issued badges",
			Buckets:   []float64{0, 25, 45, 50, 70, 75, 100},
		}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Total number of badge verifications, by outcome",
		}, []string{"outcome"}),
		Revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revocations_total",
			Help:      "Total number of revoke calls, by result (revoked or noop)",
		}, []string{"result"}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of badge store operations",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_dropped_total",
			Help:      "Total number of verification records dropped because the buffer was full",
		}),
		AuditWriteFailure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Total number of verification records that failed to persist",
		}),
	}
}

// IncIssued counts one issued badge.
func (m *Metrics) IncIssued(clearance string, score int) {
	if m == nil {
		return
	}
	m.BadgesIssued.WithLabelValues(clearance).Inc()
	m.IssuedScore.Observe(float64(score))
}

// IncVerification counts one verification outcome.
func (m *Metrics) IncVerification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

// IncRevocation counts one revoke call.
func (m *Metrics) IncRevocation(revoked bool) {
	if m == nil {
		return
	}
	result := "noop"
	if revoked {
		result = "revoked"
	}
	m.Revocations.WithLabelValues(result).Inc()
}

// ObserveStore records the latency of a store operation started at start.
func (m *Metrics) ObserveStore(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
