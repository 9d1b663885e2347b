package flutterwave

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"foodmarket/internal/orders"
	"foodmarket/internal/orders/domain"
)

// WebhookPayload is the subset of a Flutterwave webhook we act on.
type WebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID     int64  `json:"id"`
		TxRef  string `json:"tx_ref"`
		Status string `json:"status"`
	} `json:"data"`
}

// EventChargeCompleted is sent when a charge reaches a final state.
const EventChargeCompleted = "charge.completed"

// Verifier settles a payment reference.
type Verifier interface {
	VerifyPurchase(ctx context.Context, reference string) (*domain.Order, error)
}

// WebhookHandler handles Flutterwave webhook callbacks. The payload is only
// a hint: settlement always re-verifies with the API.
type WebhookHandler struct {
	hash     string
	verifier Verifier
	logger   *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(hash string, verifier Verifier, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		hash:     hash,
		verifier: verifier,
		logger:   logger,
	}
}

// ServeHTTP handles incoming webhook requests.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	presented := r.Header.Get("verif-hash")
	if h.hash == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(h.hash)) != 1 {
		h.logger.Warn("rejected webhook with bad signature", "remote_addr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("failed to parse webhook payload", "error", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	h.logger.Info("received flutterwave webhook",
		"event", payload.Event,
		"tx_ref", payload.Data.TxRef,
		"status", payload.Data.Status,
	)

	if payload.Event != EventChargeCompleted || payload.Data.TxRef == "" {
		writeAck(w)
		return
	}

	order, err := h.verifier.VerifyPurchase(r.Context(), payload.Data.TxRef)
	if err != nil {
		if orders.Retryable(err) {
			h.logger.Warn("webhook verification will be retried", "tx_ref", payload.Data.TxRef, "error", err)
			http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
			return
		}
		h.logger.Error("webhook verification failed", "tx_ref", payload.Data.TxRef, "error", err)
		writeAck(w)
		return
	}

	h.logger.Info("webhook settled order", "order_id", order.OrderID, "payment_status", order.PaymentStatus)
	writeAck(w)
}

func writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
