package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for claim ingestion.
type Metrics struct {
	// Accepted claims by shape
	ClaimsIngested *prometheus.CounterVec

	// Rejected submissions by error code
	ClaimsRejected *prometheus.CounterVec

	// Non-fatal materialization errors by shape
	EmbeddedErrors *prometheus.CounterVec

	// Confirmations recorded
	Confirmations prometheus.Counter

	// Full ingestion latency, verification through materialization
	IngestLatency prometheus.Histogram

	// Rows given chain values by the chain runner
	ChainRowsLinked prometheus.Counter

	// Chain verification failures
	ChainMismatches prometheus.Counter

	// Duration of one chain runner pass
	ChainRunDuration prometheus.Histogram
}

// New creates a new Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics with reg. Tests pass a fresh registry.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ClaimsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "endorser_claims_ingested_total",
			Help: "Total accepted claims by shape",
		}, []string{"shape"}),

		ClaimsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "endorser_claims_rejected_total",
			Help: "Total rejected claim submissions by error code",
		}, []string{"code"}),

		EmbeddedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "endorser_claims_embedded_errors_total",
			Help: "Total non-fatal materialization errors by shape",
		}, []string{"shape"}),

		Confirmations: factory.NewCounter(prometheus.CounterOpts{
			Name: "endorser_confirmations_recorded_total",
			Help: "Total confirmation records written",
		}),

		IngestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "endorser_claims_ingest_duration_seconds",
			Help:    "Duration of claim ingestion including materialization",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		ChainRowsLinked: factory.NewCounter(prometheus.CounterOpts{
			Name: "endorser_chain_rows_linked_total",
			Help: "Total claim rows linked into the hash chain",
		}),

		ChainMismatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "endorser_chain_mismatches_total",
			Help: "Total chain verifications that found a tampered row",
		}),

		ChainRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "endorser_chain_run_duration_seconds",
			Help:    "Duration of one hash-chain runner pass",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementIngested records an accepted claim.
func (m *Metrics) IncrementIngested(shape string) {
	if m != nil {
		m.ClaimsIngested.WithLabelValues(shape).Inc()
	}
}

// IncrementRejected records a rejected submission.
func (m *Metrics) IncrementRejected(code string) {
	if m != nil {
		m.ClaimsRejected.WithLabelValues(code).Inc()
	}
}

// AddEmbeddedErrors records materialization errors reported in a result.
func (m *Metrics) AddEmbeddedErrors(shape string, n int) {
	if m != nil && n > 0 {
		m.EmbeddedErrors.WithLabelValues(shape).Add(float64(n))
	}
}

// AddConfirmations records confirmation records written by one claim.
func (m *Metrics) AddConfirmations(n int) {
	if m != nil && n > 0 {
		m.Confirmations.Add(float64(n))
	}
}

// ObserveIngestLatency records the duration since start.
func (m *Metrics) ObserveIngestLatency(start time.Time) {
	if m != nil {
		m.IngestLatency.Observe(time.Since(start).Seconds())
	}
}

// AddChainLinked records rows linked by one runner pass.
func (m *Metrics) AddChainLinked(n int) {
	if m != nil && n > 0 {
		m.ChainRowsLinked.Add(float64(n))
	}
}

// IncrementChainMismatch records a failed chain verification.
func (m *Metrics) IncrementChainMismatch() {
	if m != nil {
		m.ChainMismatches.Inc()
	}
}

// ObserveChainRun records the duration since start.
func (m *Metrics) ObserveChainRun(start time.Time) {
	if m != nil {
		m.ChainRunDuration.Observe(time.Since(start).Seconds())
	}
}
