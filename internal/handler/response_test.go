package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-queue/internal/service"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err     error
		code    int
		message string
	}{
		{service.ErrJobNotFound, http.StatusNotFound, "Loan not found"},
		{service.ErrNotQueued, http.StatusConflict, "Loan not found or not in queue"},
		{service.ErrEmptyQueue, http.StatusNotFound, "No loans in queue"},
		{service.ErrReviewInProgress, http.StatusConflict, service.ErrReviewInProgress.Error()},
		{service.ErrForbidden, http.StatusForbidden, "Access denied"},
		{service.ErrDailyLimitReached, http.StatusTooManyRequests, "Daily loan limit reached"},
		{service.ErrRateLimitExceeded, http.StatusTooManyRequests, "Rate limit exceeded"},
		{fmt.Errorf("%w: database is locked", service.ErrConcurrencyConflict), http.StatusServiceUnavailable, "Queue is busy, try again"},
		{errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/api/fcfs/queue", nil), tt.err)

			assert.Equal(t, tt.code, rec.Code)
			var resp response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}
