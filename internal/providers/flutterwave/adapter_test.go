package flutterwave_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodmarket/internal/common/money"
	"foodmarket/internal/orders"
	"foodmarket/internal/providers/flutterwave"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAdapter(t *testing.T, h http.HandlerFunc) *flutterwave.Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return flutterwave.NewAdapter(flutterwave.Config{
		BaseURL:     srv.URL,
		SecretKey:   "FLWSECK_TEST-x",
		RedirectURL: "https://shop.example/redirect",
		Timeout:     2 * time.Second,
	}, discardLogger())
}

func TestInitializeSendsSplitInMajorUnits(t *testing.T) {
	var got map[string]any
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/payments", r.URL.Path)
		assert.Equal(t, "Bearer FLWSECK_TEST-x", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"link":"https://checkout.flutterwave.com/v3/hosted/pay/abc"}}`))
	})

	res, err := a.Initialize(context.Background(), orders.InitializeRequest{
		Reference:  "R1",
		Amount:     money.New(1050050, money.NGN),
		PayerEmail: "a@b.com",
		Split: orders.Split{
			PayoutAccountRef: "RS_123",
			PlatformFee:      money.New(10000, money.NGN),
			VendorShare:      money.New(1040050, money.NGN),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.flutterwave.com/v3/hosted/pay/abc", res.PaymentLink)

	assert.Equal(t, "R1", got["tx_ref"])
	assert.Equal(t, 10500.5, got["amount"])
	assert.Equal(t, "NGN", got["currency"])
	assert.Equal(t, "https://shop.example/redirect", got["redirect_url"])

	subs := got["subaccounts"].([]any)
	require.Len(t, subs, 1)
	sub := subs[0].(map[string]any)
	assert.Equal(t, "RS_123", sub["id"])
	assert.Equal(t, "flat", sub["transaction_charge_type"])
	assert.Equal(t, float64(100), sub["transaction_charge"])
}

func TestInitializeRejected(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","message":"Invalid subaccount","data":null}`))
	})

	_, err := a.Initialize(context.Background(), orders.InitializeRequest{
		Reference: "R1",
		Amount:    money.New(10000, money.NGN),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid subaccount")
}

func TestInitializeRejectsUnknownCurrency(t *testing.T) {
	var calls int
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	_, err := a.Initialize(context.Background(), orders.InitializeRequest{
		Reference: "R1",
		Amount:    money.New(10000, money.Currency("XOF")),
	})
	require.ErrorIs(t, err, money.ErrUnknownCurrency)
	assert.Zero(t, calls)
}

func TestVerify(t *testing.T) {
	tests := map[string]struct {
		status     int
		body       string
		wantStatus orders.VerificationStatus
		wantAmount money.Money
	}{
		"successful": {
			status:     http.StatusOK,
			body:       `{"status":"success","data":{"id":1,"tx_ref":"R1","flw_ref":"FLW-1","amount":100.5,"currency":"NGN","status":"successful"}}`,
			wantStatus: orders.VerificationSuccessful,
			wantAmount: money.New(10050, money.NGN),
		},
		"quoted amount": {
			status:     http.StatusOK,
			body:       `{"status":"success","data":{"id":1,"tx_ref":"R1","amount":"50","currency":"ngn","status":"successful"}}`,
			wantStatus: orders.VerificationSuccessful,
			wantAmount: money.New(5000, money.NGN),
		},
		"pending": {
			status:     http.StatusOK,
			body:       `{"status":"success","data":{"id":1,"tx_ref":"R1","amount":50,"currency":"NGN","status":"pending"}}`,
			wantStatus: orders.VerificationPending,
			wantAmount: money.New(5000, money.NGN),
		},
		"not found": {
			status:     http.StatusBadRequest,
			body:       `{"status":"error","message":"No transaction was found for this id","data":null}`,
			wantStatus: orders.VerificationFailed,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v3/transactions/verify_by_reference", r.URL.Path)
				assert.Equal(t, "R1", r.URL.Query().Get("tx_ref"))
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			v, err := a.Verify(context.Background(), "R1")
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, v.Status)
			if tc.wantStatus != orders.VerificationFailed {
				assert.Equal(t, tc.wantAmount, v.Amount)
				assert.Equal(t, "R1", v.Reference)
			}
		})
	}
}

func TestVerifyServerErrorIsRetryable(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := a.Verify(context.Background(), "R1")
	require.ErrorIs(t, err, orders.ErrGatewayUnavailable)
	assert.True(t, orders.Retryable(err))
}

func TestVerifyRespectsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Verify(ctx, "R1")
	require.ErrorIs(t, err, orders.ErrGatewayUnavailable)
	assert.True(t, orders.Retryable(err))
}

func TestVerifyRejectsSubMinorAmount(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"tx_ref":"R1","amount":10.001,"currency":"NGN","status":"successful"}}`))
	})

	_, err := a.Verify(context.Background(), "R1")
	require.Error(t, err)
	assert.False(t, orders.Retryable(err))
}
