// Package flutterwave implements the payment gateway against the Flutterwave v3 API.
package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"foodmarket/internal/common/money"
	"foodmarket/internal/orders"
)

// Config holds Flutterwave adapter configuration.
type Config struct {
	BaseURL     string        `envconfig:"FLW_BASE_URL" default:"https://api.flutterwave.com"`
	SecretKey   string        `envconfig:"FLW_SECRET_KEY"`
	WebhookHash string        `envconfig:"FLW_WEBHOOK_HASH"`
	RedirectURL string        `envconfig:"FLW_REDIRECT_URL" default:"https://chowspace.vercel.app/Payment-Redirect"`
	Timeout     time.Duration `envconfig:"FLW_TIMEOUT" default:"20s"`
}

// ChargeTypeFlat takes the platform fee as a fixed amount off the subaccount.
const ChargeTypeFlat = "flat"

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type customer struct {
	Email string `json:"email"`
}

type subaccount struct {
	ID                    string      `json:"id"`
	TransactionChargeType string      `json:"transaction_charge_type"`
	TransactionCharge     json.Number `json:"transaction_charge"`
}

type paymentRequest struct {
	TxRef       string       `json:"tx_ref"`
	Amount      json.Number  `json:"amount"`
	Currency    string       `json:"currency"`
	RedirectURL string       `json:"redirect_url"`
	Customer    customer     `json:"customer"`
	Subaccounts []subaccount `json:"subaccounts"`
}

type paymentData struct {
	Link string `json:"link"`
}

type transactionData struct {
	ID       int64           `json:"id"`
	TxRef    string          `json:"tx_ref"`
	FlwRef   string          `json:"flw_ref"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
}

// Adapter implements orders.PaymentGateway.
type Adapter struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ orders.PaymentGateway = (*Adapter)(nil)

// NewAdapter creates a new Flutterwave adapter.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Initialize creates a hosted payment page with the platform fee split off
// the vendor's subaccount. Amounts leave the system in major units here.
func (a *Adapter) Initialize(ctx context.Context, req orders.InitializeRequest) (*orders.InitializeResult, error) {
	if _, ok := money.GetCurrencyInfo(req.Amount.Currency); !ok {
		return nil, fmt.Errorf("%w: %q", money.ErrUnknownCurrency, req.Amount.Currency)
	}

	payload := paymentRequest{
		TxRef:       req.Reference,
		Amount:      json.Number(req.Amount.MajorDecimal().String()),
		Currency:    string(req.Amount.Currency),
		RedirectURL: a.config.RedirectURL,
		Customer:    customer{Email: req.PayerEmail},
		Subaccounts: []subaccount{{
			ID:                    req.Split.PayoutAccountRef,
			TransactionChargeType: ChargeTypeFlat,
			TransactionCharge:     json.Number(req.Split.PlatformFee.MajorDecimal().String()),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v3/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	status, env, err := a.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status >= 400 || env.Status != "success" {
		return nil, fmt.Errorf("flutterwave rejected payment: status=%d message=%q", status, env.Message)
	}

	var data paymentData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("unmarshal payment data: %w", err)
	}
	if data.Link == "" {
		return nil, fmt.Errorf("flutterwave returned no payment link for %s", req.Reference)
	}

	a.logger.Info("flutterwave payment initialized",
		"reference", req.Reference,
		"amount", req.Amount.AmountMinor,
		"subaccount", req.Split.PayoutAccountRef,
	)

	return &orders.InitializeResult{PaymentLink: data.Link}, nil
}

// Verify looks the transaction up by tx_ref. A definitive answer from the
// provider, including "no such transaction", comes back as a Verification;
// transport failures and 5xx responses are returned as retryable errors.
func (a *Adapter) Verify(ctx context.Context, reference string) (*orders.Verification, error) {
	endpoint := a.config.BaseURL + "/v3/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	status, env, err := a.do(httpReq)
	if err != nil {
		return nil, err
	}

	failed := &orders.Verification{Reference: reference, Status: orders.VerificationFailed}
	if status >= 400 || env.Status != "success" {
		a.logger.Warn("flutterwave verification unsuccessful",
			"reference", reference,
			"http_status", status,
			"message", env.Message,
		)
		return failed, nil
	}

	var data transactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("unmarshal transaction data: %w", err)
	}

	amount, err := money.FromMajor(data.Amount, money.Currency(strings.ToUpper(data.Currency)))
	if err != nil {
		return nil, fmt.Errorf("converting verified amount: %w", err)
	}

	return &orders.Verification{
		Reference:   data.TxRef,
		Status:      verificationStatus(data.Status),
		Amount:      amount,
		ProviderRef: data.FlwRef,
	}, nil
}

func (a *Adapter) do(req *http.Request) (int, *envelope, error) {
	req.Header.Set("Authorization", "Bearer "+a.config.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", orders.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading response: %w", orders.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return 0, nil, fmt.Errorf("%w: status=%d", orders.ErrGatewayUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 400 {
			return resp.StatusCode, &envelope{Message: strings.TrimSpace(string(body))}, nil
		}
		return 0, nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return resp.StatusCode, &env, nil
}

func verificationStatus(s string) orders.VerificationStatus {
	switch strings.ToLower(s) {
	case "successful":
		return orders.VerificationSuccessful
	case "pending":
		return orders.VerificationPending
	default:
		return orders.VerificationFailed
	}
}
