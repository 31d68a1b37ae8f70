package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tabletopreserve/tabletop/libs/httpx"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
)

func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, err.Error())
	case errors.Is(err, model.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, httpx.CodeConflict, err.Error())
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidState):
		httpx.WriteError(w, http.StatusConflict, httpx.CodeInvalidState, err.Error())
	case errors.Is(err, model.ErrDependency):
		logger.ErrorContext(r.Context(), "booking dependency failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeUnavailable, "storage temporarily unavailable")
	default:
		logger.ErrorContext(r.Context(), "unexpected booking error", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
	}
}
