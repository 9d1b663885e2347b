package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"foodmarket/internal/common/api"
	"foodmarket/internal/common/middleware"
	"foodmarket/internal/orders"
)

// Handler handles order and payment HTTP requests
type Handler struct {
	service       *orders.Service
	adminToken    string
	defaultMaxAge time.Duration
}

// NewHandler creates a new order handler
func NewHandler(service *orders.Service, adminToken string, defaultMaxAge time.Duration) *Handler {
	return &Handler{
		service:       service,
		adminToken:    adminToken,
		defaultMaxAge: defaultMaxAge,
	}
}

// Routes returns the order routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Payment routes
	r.Post("/payments/initiate", h.InitiatePurchase)
	r.Post("/payments/verify", h.VerifyPurchase)

	// Read projections
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{orderID}", h.GetOrder)

	// Admin routes
	r.With(middleware.AdminToken(h.adminToken)).Post("/maintenance/sweep-stale-orders", h.SweepStaleOrders)

	return r
}

// InitiatePurchase handles POST /payments/initiate
func (h *Handler) InitiatePurchase(w http.ResponseWriter, r *http.Request) {
	var req orders.InitiatePurchaseRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.service.InitiatePurchase(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, res)
}

// VerifyPurchaseRequest is the API request for verifying a payment
type VerifyPurchaseRequest struct {
	Reference string `json:"reference" validate:"required"`
}

// VerifyPurchase handles POST /payments/verify
func (h *Handler) VerifyPurchase(w http.ResponseWriter, r *http.Request) {
	var req VerifyPurchaseRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	order, err := h.service.VerifyPurchase(r.Context(), req.Reference)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, order)
}

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	vendorID := r.URL.Query().Get("vendor_id")
	if vendorID == "" {
		vendorID = middleware.GetVendorID(r.Context())
	}
	if vendorID == "" {
		api.BadRequest(w, "vendor_id is required")
		return
	}

	page := api.GetPaginationParams(r, 20, 100)
	list, total, err := h.service.ListOrders(r.Context(), vendorID, page.Limit, page.Offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WritePaginated(w, list, api.NewPagination(page, len(list), total))
}

// GetOrder handles GET /orders/{orderID}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, order)
}

// SweepRequest is the API request for the stale order sweep
type SweepRequest struct {
	MaxAge string `json:"max_age"`
}

// SweepStaleOrders handles POST /maintenance/sweep-stale-orders
func (h *Handler) SweepStaleOrders(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.BadRequest(w, "invalid request body")
		return
	}

	maxAge := h.defaultMaxAge
	if req.MaxAge != "" {
		d, err := time.ParseDuration(req.MaxAge)
		if err != nil {
			api.WriteErrorWithDetails(w, http.StatusUnprocessableEntity, api.ErrCodeValidation, "Validation failed",
				map[string]string{"max_age": "Must be a duration such as 24h"})
			return
		}
		maxAge = d
	}

	removed, err := h.service.SweepStalePending(r.Context(), maxAge)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, map[string]any{
		"removed": removed,
		"max_age": maxAge.String(),
	})
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		api.ValidationError(w, err)
		return
	}
	api.BadRequest(w, "invalid request body")
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrValidation):
		api.ValidationError(w, err)
	case errors.Is(err, orders.ErrConflict), errors.Is(err, orders.ErrWalletCurrency):
		api.Conflict(w, err.Error())
	case errors.Is(err, orders.ErrNotFound):
		api.NotFound(w, err.Error())
	case errors.Is(err, orders.ErrAmountMismatch):
		api.WriteError(w, http.StatusConflict, api.ErrCodeAmountMismatch, err.Error())
	case errors.Is(err, orders.ErrVerificationFailed):
		api.WriteErrorWithDetails(w, http.StatusPaymentRequired, api.ErrCodeVerificationFailed, err.Error(),
			map[string]string{"retryable": retryable(err)})
	case errors.Is(err, orders.ErrPaymentInit):
		api.WriteError(w, http.StatusBadGateway, api.ErrCodePaymentInitFailed, "payment gateway did not accept the payment")
	case errors.Is(err, orders.ErrStorage):
		api.ServiceUnavailable(w, "storage unavailable, retry later")
	default:
		api.InternalError(w, "unexpected error")
	}
}

func retryable(err error) string {
	if orders.Retryable(err) {
		return "true"
	}
	return "false"
}
