package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fjod/aquakit/internal/api"
	"github.com/fjod/aquakit/internal/catalog"
	"github.com/fjod/aquakit/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CatalogReader interface {
	ListItems(ctx context.Context) ([]*domain.CatalogItem, error)
	GetItem(ctx context.Context, id string) (*domain.CatalogItem, error)
}

type CatalogHandler struct {
	catalog CatalogReader
	log     *zap.Logger
}

func NewCatalogHandler(catalog CatalogReader, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, log: log}
}

func (h *CatalogHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.ListItems(r.Context())
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.GetItem(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrItemNotFound) {
		respondError(w, http.StatusNotFound, api.CodeNotFound, "test kit not found")
		return
	}
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}
