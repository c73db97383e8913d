// internal/handler/response.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/brunao23/GerenciaIA-sub000/internal/errors"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	var (
		notFound *appErrors.ErrScheduleNotFound
		maxed    *appErrors.ErrMaxAttemptsReached
		invalid  *appErrors.ErrInvalidContext
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &maxed):
		return http.StatusConflict
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrNoMessagingConfig):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes {"error": ...} with the mapped status.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, StatusFor(err), map[string]string{"error": err.Error()})
}
