package http

import (
	"context"
	"net/http"

	"github.com/fjod/aquakit/internal/api"
	"github.com/fjod/aquakit/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CartService interface {
	GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	AddItem(ctx context.Context, owner domain.Owner, catalogItemID string, quantity int) error
	UpdateQuantity(ctx context.Context, owner domain.Owner, lineID string, quantity int) error
	RemoveItem(ctx context.Context, owner domain.Owner, lineID string) error
	ClearCart(ctx context.Context, owner domain.Owner) error
	MergeCarts(ctx context.Context, from, to domain.Owner) error
}

type CartHandler struct {
	carts CartService
	log   *zap.Logger
}

func NewCartHandler(carts CartService, log *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, log: log}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, http.StatusOK)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req api.AddItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CatalogItemID == "" {
		respondError(w, http.StatusBadRequest, api.CodeInvalidRequest, "catalog_item_id is required")
		return
	}

	owner := ownerFromContext(r.Context())
	if err := h.carts.AddItem(r.Context(), owner, req.CatalogItemID, req.Quantity); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	h.respondCart(w, r, http.StatusCreated)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	owner := ownerFromContext(r.Context())
	if err := h.carts.UpdateQuantity(r.Context(), owner, chi.URLParam(r, "line_id"), req.Quantity); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	if err := h.carts.RemoveItem(r.Context(), owner, chi.URLParam(r, "line_id")); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	if err := h.carts.ClearCart(r.Context(), owner); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

// MergeCart folds the anonymous cart named by X-Cart-Session into the
// authenticated account's cart.
func (h *CartHandler) MergeCart(w http.ResponseWriter, r *http.Request) {
	session := r.Header.Get(api.HeaderCartSession)
	if _, err := uuid.Parse(session); err != nil {
		respondError(w, http.StatusBadRequest, api.CodeInvalidSession, "X-Cart-Session must name the anonymous cart")
		return
	}

	account := ownerFromContext(r.Context())
	if err := h.carts.MergeCarts(r.Context(), domain.AnonymousOwner(session), account); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	h.respondCart(w, r, http.StatusOK)
}

func (h *CartHandler) respondCart(w http.ResponseWriter, r *http.Request, status int) {
	cart, err := h.carts.GetCart(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, status, api.NewCartResponse(cart))
}
