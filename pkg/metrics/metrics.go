package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the payment core collectors. Constructed once at startup
// with its own registry so tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	PaymentsInitiated *prometheus.CounterVec
	PaymentsSettled   *prometheus.CounterVec
	PaymentsFailed    *prometheus.CounterVec
	PaymentsExpired   *prometheus.CounterVec
	ReconcilerRuns    prometheus.Counter
	ReconcilerClaims  prometheus.Counter
	PromotionsExpired prometheus.Counter
	WalletOperations  *prometheus.CounterVec
}

// New creates a Metrics instance backed by a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PaymentsInitiated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ikaze_payments_initiated_total",
			Help: "Payment intents created, by method.",
		}, []string{"method"}),
		PaymentsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ikaze_payments_settled_total",
			Help: "Payment transactions settled as completed, by method.",
		}, []string{"method"}),
		PaymentsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ikaze_payments_failed_total",
			Help: "Payment transactions that ended failed, by method.",
		}, []string{"method"}),
		PaymentsExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ikaze_payments_expired_total",
			Help: "Payment transactions expired without a provider answer, by method.",
		}, []string{"method"}),
		ReconcilerRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "ikaze_reconciler_runs_total",
			Help: "Completed reconciliation sweeps.",
		}),
		ReconcilerClaims: factory.NewCounter(prometheus.CounterOpts{
			Name: "ikaze_reconciler_claimed_total",
			Help: "Stale transactions claimed for re-verification.",
		}),
		PromotionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "ikaze_promotions_expired_total",
			Help: "Listing promotions swept to expired.",
		}),
		WalletOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ikaze_wallet_operations_total",
			Help: "Wallet ledger operations applied, by type.",
		}, []string{"type"}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
