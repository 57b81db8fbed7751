package service

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound         = errors.New("loan not found")
	ErrNotQueued           = errors.New("loan not found or not in queue")
	ErrInvalidState        = errors.New("invalid state for this operation")
	ErrReviewInProgress    = fmt.Errorf("%w: another loan is already under review", ErrInvalidState)
	ErrEmptyQueue          = errors.New("no loans in queue")
	ErrForbidden           = errors.New("forbidden")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrDailyLimitReached   = errors.New("no loan numbers left for today")
	ErrConcurrencyConflict = errors.New("queue is busy, try again")
)

// ValidationError reports a rejected input field. Nothing is written when
// one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
