// Package queue defines the bounded, at-least-once delivery contract
// between the receiver and the worker pool (§4.2), with two realisations:
// an in-process bounded channel (default) and a NATS-backed broker.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/tracecore/tracecore/internal/domain/span"
)

// ErrFull is returned by Publish when the queue is at its high-water mark
// and the publish deadline elapses before room frees up.
var ErrFull = errors.New("queue: at capacity")

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = errors.New("queue: closed")

// Batch is a unit of work pulled by a worker: one or more spans that arrived
// together, plus the retry bookkeeping needed for at-least-once delivery.
type Batch struct {
	Spans   []*span.Span
	attempt int
}

// Attempt returns how many times this batch has been nacked so far (0 on
// first delivery).
func (b *Batch) Attempt() int { return b.attempt }

// Queue decouples the receiver from the worker pool.
type Queue interface {
	// Publish enqueues batch, blocking at most until ctx is done. It returns
	// ErrFull if the high-water mark is hit and the deadline elapses first.
	Publish(ctx context.Context, batch *Batch) error

	// Subscribe returns a channel of batches to process. Each delivered
	// batch must be resolved by calling exactly one of Ack or Nack.
	Subscribe(ctx context.Context) <-chan Delivery

	// Depth reports the current queue depth for health/backpressure
	// reporting.
	Depth() int

	// Close shuts the queue down, stopping delivery.
	Close() error
}

// Delivery pairs a Batch with its ack/nack callbacks.
type Delivery struct {
	Batch *Batch
	Ack   func()
	Nack  func()
}

// MaxRetries bounds nack-triggered redelivery before a batch is moved to the
// dead-letter sink (§7: transient errors retried up to 3 attempts).
const MaxRetries = 3

// BackoffBase is the base for the exponential backoff applied between
// redelivery attempts.
const BackoffBase = 200 * time.Millisecond

// Backoff returns the delay before redelivering a batch on its attempt'th
// nack (attempt is 1-based).
func Backoff(attempt int) time.Duration {
	d := BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
