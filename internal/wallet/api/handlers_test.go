package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodmarket/internal/common/database"
	"foodmarket/internal/common/money"
	"foodmarket/internal/wallet"
	walletapi "foodmarket/internal/wallet/api"
	"foodmarket/internal/wallet/domain"
)

type stubStore map[string]*domain.Wallet

func (s stubStore) GetWallet(ctx context.Context, vendorID string) (*domain.Wallet, error) {
	if vendorID == "BROKEN" {
		return nil, errors.New("connection refused")
	}
	w, ok := s[vendorID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return w, nil
}

func newServer(t *testing.T, store stubStore) *httptest.Server {
	t.Helper()
	svc := wallet.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Mount("/vendors", walletapi.NewHandler(svc).Routes())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestWalletEndpoints(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := domain.NewWallet("V1", money.NGN, now)
	for _, ref := range []string{"R1", "R2"} {
		c, err := domain.NewCredit("V1", money.New(9000, money.NGN), ref, "Payment for order")
		require.NoError(t, err)
		_, err = w.Apply(c, now)
		require.NoError(t, err)
	}
	srv := newServer(t, stubStore{"V1": w})

	code, body := getJSON(t, srv.URL+"/vendors/V1/wallet")
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(18000), data["balance"])
	assert.Len(t, data["transactions"], 2)

	code, body = getJSON(t, srv.URL+"/vendors/V1/wallet/audit")
	require.Equal(t, http.StatusOK, code)
	report := body["data"].(map[string]any)
	assert.Equal(t, true, report["consistent"])
	assert.Equal(t, float64(18000), report["folded"])
}

func TestWalletAuditReportsDrift(t *testing.T) {
	now := time.Now()
	w := domain.NewWallet("V1", money.NGN, now)
	c, err := domain.NewCredit("V1", money.New(500, money.NGN), "R1", "")
	require.NoError(t, err)
	_, err = w.Apply(c, now)
	require.NoError(t, err)
	w.Balance = 900

	srv := newServer(t, stubStore{"V1": w})
	code, body := getJSON(t, srv.URL+"/vendors/V1/wallet/audit")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["data"].(map[string]any)["consistent"])
}

func TestWalletErrors(t *testing.T) {
	srv := newServer(t, stubStore{})

	code, body := getJSON(t, srv.URL+"/vendors/V9/wallet")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])

	code, _ = getJSON(t, srv.URL+"/vendors/BROKEN/wallet")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
