package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verification outcomes recorded on the Verifications counter.
const (
	OutcomePaid      = "paid"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeMismatch  = "mismatch"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

// Registry holds the order service's collectors on a private registry.
type Registry struct {
	reg *prometheus.Registry

	PaymentsInitiated   *prometheus.CounterVec
	Verifications       *prometheus.CounterVec
	WalletCredits       prometheus.Counter
	WalletCreditedMinor prometheus.Counter
	OrdersSwept         prometheus.Counter
	GatewayLatencySec   *prometheus.HistogramVec
}

// NewRegistry creates the collectors and registers them on a fresh registry,
// so tests can build as many as they like.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	initiated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_payments_initiated_total",
		Help: "Purchase initiations by result.",
	}, []string{"result"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_verifications_total",
		Help: "Payment verifications by outcome.",
	}, []string{"outcome"})
	credits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_credits_total",
		Help: "Wallet credits applied on order settlement.",
	})
	creditedMinor := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_credited_minor_total",
		Help: "Sum of wallet credits in minor currency units.",
	})
	swept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_swept_total",
		Help: "Stale pending orders deleted by the sweep.",
	})
	gatewayLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_latency_seconds",
		Help:    "Payment gateway call latency by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	r.MustRegister(initiated, verifications, credits, creditedMinor, swept, gatewayLatency)
	return &Registry{
		reg:                 r,
		PaymentsInitiated:   initiated,
		Verifications:       verifications,
		WalletCredits:       credits,
		WalletCreditedMinor: creditedMinor,
		OrdersSwept:         swept,
		GatewayLatencySec:   gatewayLatency,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
