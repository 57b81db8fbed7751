package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"loan-queue/internal/service"
)

// envelope is the body of every API response
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(envelope{Status: "success", Message: message, Data: data}); err != nil {
		log.Error().Err(err).Msg("error encoding response")
	}
}

func writeError(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(envelope{Status: "error", Message: message, Data: data}); err != nil {
		log.Error().Err(err).Msg("error encoding response")
	}
}

// writeServiceError maps a service error onto a status code
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error(), map[string]string{"field": verr.Field})
	case errors.Is(err, service.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "Loan not found", nil)
	case errors.Is(err, service.ErrNotQueued):
		writeError(w, http.StatusConflict, "Loan not found or not in queue", nil)
	case errors.Is(err, service.ErrEmptyQueue):
		writeError(w, http.StatusNotFound, "No loans in queue", nil)
	case errors.Is(err, service.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "Access denied", nil)
	case errors.Is(err, service.ErrDailyLimitReached):
		writeError(w, http.StatusTooManyRequests, "Daily loan limit reached", nil)
	case errors.Is(err, service.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
	case errors.Is(err, service.ErrConcurrencyConflict):
		writeError(w, http.StatusServiceUnavailable, "Queue is busy, try again", nil)
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}
