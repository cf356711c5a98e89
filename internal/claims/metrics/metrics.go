package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the adjudication engine.
type Metrics struct {
	ClaimsSubmitted     *prometheus.CounterVec
	ClaimTransitions    *prometheus.CounterVec
	FraudFlags          *prometheus.CounterVec
	PaymentsAuthorized  prometheus.Counter
	PaymentGateRejects  *prometheus.CounterVec
	AuthorizeDurationMs prometheus.Histogram
}

// New registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer. Tests pass a fresh
// registry so suites can construct metrics independently.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ClaimsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medisure_claims_submitted_total",
			Help: "Total claims accepted at intake, labeled by initial status",
		}, []string{"status"}),
		ClaimTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medisure_claim_transitions_total",
			Help: "Total claim status transitions, labeled by target status",
		}, []string{"to"}),
		FraudFlags: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medisure_fraud_flags_total",
			Help: "Total fraud risk escalations, labeled by assigned level",
		}, []string{"level"}),
		PaymentsAuthorized: factory.NewCounter(prometheus.CounterOpts{
			Name: "medisure_payments_authorized_total",
			Help: "Total successful payment authorizations",
		}),
		PaymentGateRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medisure_payment_gate_rejects_total",
			Help: "Payment authorizations rejected, labeled by failing guard",
		}, []string{"guard"}),
		AuthorizeDurationMs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medisure_authorize_payment_duration_ms",
			Help:    "Latency of payment authorization in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}),
	}
}
