// Package retry implements bounded exponential backoff for operations
// against infrastructure that may not be ready yet (database, Redis).
package retry

import (
	"context"
	"fmt"
	"time"
)

// Action tells Do how to treat a failed attempt.
type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, back off and try again
)

type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	OnRetry        func(attempt int, err error, backoff time.Duration)
}

type Classify func(err error) Action
type Operation[T any] func() (T, error)
type VoidOperation func() error

// Do runs op up to MaxAttempts times, doubling the backoff between attempts.
// classify may be nil, in which case every error is treated as transient.
func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	backoff := p.InitialBackoff

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		if classify != nil && classify(err) == Stop {
			var zero T
			return zero, &PermanentError{Err: err}
		}

		if attempt == p.MaxAttempts {
			var zero T
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	panic("unreachable: MaxAttempts must be >= 1")
}

// DoVoid is Do for operations without a result value.
func DoVoid(ctx context.Context, p Policy, classify Classify, op VoidOperation) error {
	_, err := Do(ctx, p, classify, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// PermanentError wraps an error that classify marked as non-retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
