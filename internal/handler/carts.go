package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourorg/storecrm/internal/domain"
	"github.com/yourorg/storecrm/internal/security/middleware"
)

// UpsertCartRequest captures one abandoned checkout
type UpsertCartRequest struct {
	StoreID     string             `json:"storeId"`
	ContactID   string             `json:"contactId,omitempty"`
	ExternalID  string             `json:"externalId"`
	Email       string             `json:"email,omitempty"`
	Phone       string             `json:"phone,omitempty"`
	Items       []domain.OrderItem `json:"items,omitempty"`
	Total       float64            `json:"total"`
	CheckoutURL string             `json:"checkoutUrl,omitempty"`
	AbandonedAt *time.Time         `json:"abandonedAt,omitempty"`
}

// MarkRecoveredRequest links the completing order
type MarkRecoveredRequest struct {
	OrderID string `json:"orderId,omitempty"`
}

// CartHandler records abandoned carts and checkout completions. The recovered
// flag arriving here is what stops in-flight recovery jobs from messaging a
// customer who already bought.
type CartHandler struct {
	carts  domain.CartRepository
	logger *slog.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(carts domain.CartRepository, logger *slog.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

// Upsert handles POST /api/carts
func (h *CartHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantFromContext(r.Context())
	if tenant == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req UpsertCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}
	if req.StoreID == "" || req.ExternalID == "" {
		http.Error(w, `{"error":"storeId and externalId are required"}`, http.StatusBadRequest)
		return
	}

	cart := &domain.AbandonedCart{
		TenantID:    tenant.ID,
		StoreID:     req.StoreID,
		ContactID:   req.ContactID,
		ExternalID:  req.ExternalID,
		Email:       req.Email,
		Phone:       req.Phone,
		Items:       req.Items,
		Total:       req.Total,
		CheckoutURL: req.CheckoutURL,
	}
	if req.AbandonedAt != nil {
		cart.AbandonedAt = *req.AbandonedAt
	}
	if err := h.carts.Upsert(r.Context(), cart); err != nil {
		h.logger.Error("failed to upsert cart", slog.String("error", err.Error()))
		http.Error(w, `{"error":"failed to save cart"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"id": cart.ID})
}

// MarkRecovered handles POST /api/carts/{cartId}/recovered
func (h *CartHandler) MarkRecovered(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantFromContext(r.Context())
	if tenant == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	cartID := r.PathValue("cartId")
	cart, err := h.carts.GetByID(r.Context(), cartID)
	if err != nil || cart.TenantID != tenant.ID {
		http.Error(w, `{"error":"cart not found"}`, http.StatusNotFound)
		return
	}

	var req MarkRecoveredRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	won, err := h.carts.MarkRecovered(r.Context(), cartID, req.OrderID)
	if err != nil {
		h.logger.Error("failed to mark cart recovered", slog.String("error", err.Error()))
		http.Error(w, `{"error":"failed to mark recovered"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"recovered": won})
}
