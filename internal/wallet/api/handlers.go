package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"foodmarket/internal/common/api"
	"foodmarket/internal/wallet"
)

// Handler handles wallet HTTP requests
type Handler struct {
	service *wallet.Service
}

// NewHandler creates a new wallet handler
func NewHandler(service *wallet.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the wallet routes, mounted under /vendors
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{vendorID}/wallet", h.GetWallet)
	r.Get("/{vendorID}/wallet/audit", h.Audit)

	return r
}

// GetWallet handles GET /vendors/{vendorID}/wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "vendorID")

	wl, err := h.service.GetWallet(r.Context(), vendorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, wl)
}

// Audit handles GET /vendors/{vendorID}/wallet/audit
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "vendorID")

	report, err := h.service.Audit(r.Context(), vendorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	api.WriteData(w, http.StatusOK, report)
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, wallet.ErrNotFound) {
		api.NotFound(w, "wallet not found")
		return
	}
	api.ServiceUnavailable(w, "wallet storage unavailable")
}
