package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/logging"
	"github.com/fjod/go_cart/storefront/internal/service"
)

// Envelope is the shape of every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Envelope{Success: status < 400, Message: message, Data: data}); err != nil {
		logging.FromCtx(r.Context()).Error("failed to encode response", "err", err)
	}
}

func respondFailure(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, message, nil)
}

// respondError maps service errors onto status codes. Anything unknown is
// logged and reported as a bare 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		logging.FromCtx(r.Context()).Error("request failed", "err", err)
	}
	respondFailure(w, r, status, message)
}

func classify(err error) (int, string) {
	var invalid *validationError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidShippingInfo),
		errors.Is(err, service.ErrInvalidQuantity):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
