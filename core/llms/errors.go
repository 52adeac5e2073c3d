package llms

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is returned when the model did not answer in time.
var ErrTimeout = errors.New("llm request timed out")

// ServiceError is returned when the provider answered with a non-OK status.
type ServiceError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("llm service error: %s", e.Status)
	}
	return fmt.Sprintf("llm service error: %s: %s", e.Status, e.Body)
}

// Retryable reports whether the provider is likely to succeed on retry.
func (e *ServiceError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ClassifyError maps context deadline errors onto ErrTimeout and passes
// everything else through.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
