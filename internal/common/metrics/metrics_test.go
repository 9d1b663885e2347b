package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodmarket/internal/common/metrics"
)

func scrape(t *testing.T, reg *metrics.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRegistryHandlerExposesCollectors(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Verifications.WithLabelValues(metrics.OutcomePaid).Inc()
	reg.WalletCredits.Inc()
	reg.WalletCreditedMinor.Add(9000)
	reg.OrdersSwept.Add(2)
	reg.GatewayLatencySec.WithLabelValues("verify").Observe(0.2)

	body := scrape(t, reg)
	for _, want := range []string{
		"# HELP wallet_credits_total",
		"# HELP wallet_credited_minor_total",
		"# HELP orders_swept_total",
		"# HELP payment_gateway_latency_seconds",
		`orders_verifications_total{outcome="paid"} 1`,
		"wallet_credited_minor_total 9000",
		"orders_swept_total 2",
	} {
		assert.Contains(t, body, want)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := metrics.NewRegistry(), metrics.NewRegistry()
	a.OrdersSwept.Inc()

	assert.Contains(t, scrape(t, a), "orders_swept_total 1")
	assert.Contains(t, scrape(t, b), "orders_swept_total 0")
}
