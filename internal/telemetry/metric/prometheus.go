// Package metric provides Prometheus metrics for tokenkeeper.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tokenkeeper"

// Validation outcomes used as the result label.
const (
	ResultValid    = "valid"
	ResultNotFound = "not_found"
	ResultExpired  = "expired"
	ResultRevoked  = "revoked"
	ResultError    = "error"
)

// Registry holds all application metrics.
type Registry struct {
	TokensIssued     prometheus.Counter
	IssueRetries     prometheus.Counter
	TokenValidations *prometheus.CounterVec
	TokensRevoked    prometheus.Counter

	SweepDeleted     prometheus.Counter
	SweepFailures    prometheus.Counter
	SweepDuration    prometheus.Histogram
	SweepLastSuccess prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a registry with the Go and process collectors and
// all tokenkeeper instruments registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Total number of tokens issued.",
		}),
		IssueRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_retries_total",
			Help:      "Secret regenerations caused by duplicate secrets.",
		}),
		TokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validations_total",
			Help:      "Token validations by result.",
		}, []string{"result"}),
		TokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_revoked_total",
			Help:      "Total number of revoke calls that found a token.",
		}),
		SweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Expired or revoked records deleted by the cleaner.",
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Per-record delete failures and abandoned sweep cycles.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of cleaner sweep cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		SweepLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweep_last_success_timestamp_seconds",
			Help:      "Unix time of the last sweep cycle that completed its listing.",
		}),
		registry: reg,
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.TokensIssued,
		r.IssueRetries,
		r.TokenValidations,
		r.TokensRevoked,
		r.SweepDeleted,
		r.SweepFailures,
		r.SweepDuration,
		r.SweepLastSuccess,
	)

	return r
}

// Prometheus returns the underlying registry so other components can
// register their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler returns an http.Handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// TokenIssued records one successful issuance.
func (r *Registry) TokenIssued() {
	r.TokensIssued.Inc()
}

// IssueRetried records one regeneration after a duplicate secret.
func (r *Registry) IssueRetried() {
	r.IssueRetries.Inc()
}

// TokenValidated records a validation outcome.
func (r *Registry) TokenValidated(result string) {
	r.TokenValidations.WithLabelValues(result).Inc()
}

// TokenRevoked records a revocation.
func (r *Registry) TokenRevoked() {
	r.TokensRevoked.Inc()
}

// SweepFinished records one sweep cycle. listed is false when the cycle
// was abandoned because the store could not be listed.
func (r *Registry) SweepFinished(deleted, failed int, elapsed time.Duration, listed bool, at time.Time) {
	r.SweepDeleted.Add(float64(deleted))
	r.SweepFailures.Add(float64(failed))
	r.SweepDuration.Observe(elapsed.Seconds())
	if listed {
		r.SweepLastSuccess.Set(float64(at.Unix()))
	} else {
		r.SweepFailures.Inc()
	}
}
