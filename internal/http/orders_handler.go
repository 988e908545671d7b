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

type OrderReader interface {
	ListOrders(ctx context.Context, accountID string) ([]*domain.Order, error)
	GetOrder(ctx context.Context, accountID string, id uuid.UUID) (*domain.Order, error)
}

type OrdersHandler struct {
	orders OrderReader
	log    *zap.Logger
}

func NewOrdersHandler(orders OrderReader, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, log: log}
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), ownerFromContext(r.Context()).ID)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), ownerFromContext(r.Context()).ID, id)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, api.CodeInvalidRequest, name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
