package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/tab"
	"github.com/sony/gobreaker/v2"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps sentinel errors from the tab and catalog layers to HTTP
// status codes.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tab.ErrTabNotFound):
		respondError(w, http.StatusNotFound, "tab_not_found", err.Error())
	case errors.Is(err, tab.ErrForbidden):
		respondError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		respondError(w, http.StatusServiceUnavailable, "catalog_unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, context.Canceled):
		respondError(w, http.StatusRequestTimeout, "cancelled", "request cancelled")
	default:
		slog.Error("request failed", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
