package http

import (
	"context"
	"net/http"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ResultReader interface {
	List(ctx context.Context, accountID string) ([]domain.LabResult, error)
	Get(ctx context.Context, accountID string, id uuid.UUID) (*domain.LabResult, error)
}

type ResultsHandler struct {
	results ResultReader
	log     *zap.Logger
}

func NewResultsHandler(results ResultReader, log *zap.Logger) *ResultsHandler {
	return &ResultsHandler{results: results, log: log}
}

func (h *ResultsHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.results.List(r.Context(), ownerFromContext(r.Context()).ID)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *ResultsHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	result, err := h.results.Get(r.Context(), ownerFromContext(r.Context()).ID, id)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
