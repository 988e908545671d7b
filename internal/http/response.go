package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/aquakit/internal/api"
	"github.com/fjod/aquakit/internal/checkout"
	"github.com/fjod/aquakit/internal/orders"
	"github.com/fjod/aquakit/internal/repository"
	"github.com/fjod/aquakit/internal/results"
	"github.com/fjod/aquakit/internal/service"
	"github.com/fjod/aquakit/pkg/logger"
	"go.uber.org/zap"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, api.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var serviceErrors = []errorMapping{
	{service.ErrInvalidQuantity, http.StatusBadRequest, api.CodeInvalidQuantity},
	{service.ErrUnknownItem, http.StatusNotFound, api.CodeUnknownItem},
	{service.ErrOutOfStock, http.StatusConflict, api.CodeOutOfStock},
	{service.ErrInvalidMerge, http.StatusBadRequest, api.CodeInvalidMerge},
	{repository.ErrLineNotFound, http.StatusNotFound, api.CodeLineNotFound},
	{checkout.ErrEmptyCart, http.StatusUnprocessableEntity, api.CodeEmptyCart},
	{checkout.ErrAuthenticationRequired, http.StatusUnauthorized, api.CodeAuthenticationRequired},
	{checkout.ErrMissingIdempotencyKey, http.StatusBadRequest, api.CodeInvalidRequest},
	{checkout.ErrInvalidShipping, http.StatusBadRequest, api.CodeInvalidShipping},
	{checkout.ErrCartChanged, http.StatusConflict, api.CodeCartChanged},
	{checkout.ErrPaymentDeclined, http.StatusPaymentRequired, api.CodePaymentDeclined},
	{checkout.ErrPaymentUnavailable, http.StatusServiceUnavailable, api.CodePaymentUnavailable},
	{orders.ErrOrderNotFound, http.StatusNotFound, api.CodeNotFound},
	{results.ErrResultNotFound, http.StatusNotFound, api.CodeNotFound},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, api.CodeTimeout},
}

// respondServiceError maps domain errors to HTTP statuses. Unknown errors are
// logged and reported as a generic internal error.
func respondServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			respondError(w, m.status, m.code, err.Error())
			return
		}
	}

	logger.FromContext(r.Context(), log).Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	respondError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error, please retry")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, api.CodeInvalidRequest, "invalid JSON body")
		return false
	}
	return true
}
