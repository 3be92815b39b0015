package pipeline

import (
	"context"
	"errors"
)

var (
	// ErrProviderTimeout marks a model call that exceeded its deadline.
	ErrProviderTimeout = errors.New("pipeline: provider timeout")

	// ErrProviderError marks a model call that failed for any other reason.
	ErrProviderError = errors.New("pipeline: provider error")

	// ErrPipelineExhausted means the primary generator failed and no
	// fallback exists. An empty draft cannot be corrected.
	ErrPipelineExhausted = errors.New("pipeline: generator exhausted")

	// ErrHumanEscalation signals the request needs manual handling.
	ErrHumanEscalation = errors.New("pipeline: human escalation required")
)

// classifyProviderErr maps a raw client error onto the provider taxonomy.
func classifyProviderErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrProviderTimeout) {
		return ErrProviderTimeout
	}
	return ErrProviderError
}
