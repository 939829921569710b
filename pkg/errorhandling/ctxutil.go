// Package errorhandling holds the context-deadline guards shared by
// components that refuse to start work they cannot finish in time.
package errorhandling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoDeadline indicates the context doesn't have a deadline
	ErrNoDeadline = errors.New("context has no deadline")

	// ErrInsufficientTime indicates not enough time remains before deadline
	ErrInsufficientTime = errors.New("insufficient time remaining before deadline")
)

// Remaining returns the time left before ctx's deadline, or ErrNoDeadline
// for a context without one.
func Remaining(ctx context.Context) (time.Duration, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, ErrNoDeadline
	}

	return time.Until(deadline), nil
}

// EnsureMinimumLifetime returns ErrInsufficientTime when ctx has a deadline
// with less than need remaining. A context without a deadline passes: no
// deadline means no limit.
func EnsureMinimumLifetime(ctx context.Context, need time.Duration) error {
	remaining, err := Remaining(ctx)
	if errors.Is(err, ErrNoDeadline) {
		return nil
	}

	if remaining < need {
		return fmt.Errorf("%w: %s left, %s needed", ErrInsufficientTime, remaining, need)
	}

	return nil
}
