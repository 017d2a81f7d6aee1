// Package queue provides the at-least-once job transport between the
// observation webhooks, the reconciliation workers and the settlement stage.
package queue

import (
	"context"
	"time"
)

// Stream names. Observation markers enter reconciliation through
// StreamReconcile; settlement-ready transactions leave through
// StreamForward.
const (
	StreamReconcile = "temp-transactions"
	StreamForward   = "transactions"
)

// JobOptions control redelivery of a published job. Delays grow
// exponentially from RetryDelay up to RetryDelayMax.
type JobOptions struct {
	MaxAttempts   int
	RetryDelay    time.Duration
	RetryDelayMax time.Duration
}

// DefaultJobOptions mirrors the queue defaults used for both streams.
func DefaultJobOptions() JobOptions {
	return JobOptions{
		MaxAttempts:   25,
		RetryDelay:    30 * time.Second,
		RetryDelayMax: 10 * time.Minute,
	}
}

// Delivery is one job handed to a consumer. Attempt starts at 1.
type Delivery struct {
	ID      string
	Payload []byte
	Attempt int
}

// Handler processes one delivery. A non-nil error schedules redelivery
// until the job's attempts are exhausted.
type Handler func(ctx context.Context, d Delivery) error

// Queue is the job transport. Implementations must deliver at least once;
// consumers own idempotency.
type Queue interface {
	// Enqueue publishes payload (JSON-encoded) to stream with the given
	// redelivery options.
	Enqueue(ctx context.Context, stream string, payload any, opts JobOptions) error

	// Consume delivers jobs from stream to handler until ctx is done.
	// Jobs whose handler fails are redelivered after a backoff delay.
	Consume(ctx context.Context, stream, group, consumer string, handler Handler) error

	Close() error
}

// retryDelay computes the redelivery delay for a given attempt (1-based),
// doubling from opts.RetryDelay and capping at opts.RetryDelayMax.
func retryDelay(opts JobOptions, attempt int) time.Duration {
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if opts.RetryDelayMax > 0 && delay >= opts.RetryDelayMax {
			return opts.RetryDelayMax
		}
	}
	if opts.RetryDelayMax > 0 && delay > opts.RetryDelayMax {
		return opts.RetryDelayMax
	}
	return delay
}
