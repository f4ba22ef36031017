package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/tracecore/tracecore/internal/domain/span"
)

// Subject is the NATS subject batches are published to.
const Subject = "tracecore.ingest"

// DLQSubject is where batches land once MaxRetries is exhausted.
const DLQSubject = "tracecore.ingest.dlq"

const retryHeader = "X-Retry-Count"

// wireBatch is the JSON envelope carried over NATS.
type wireBatch struct {
	Spans []*span.Span `json:"spans"`
}

// NATSQueue is the external-broker realisation of Queue (§4.2), used when
// QUEUE_URL is configured.
type NATSQueue struct {
	nc           *nats.Conn
	sub          *nats.Subscription
	deliveries   chan Delivery
}

// NewNATSQueue connects to url and subscribes to Subject.
func NewNATSQueue(url string) (*NATSQueue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	q := &NATSQueue{nc: nc, deliveries: make(chan Delivery, 256)}

	sub, err := nc.Subscribe(Subject, q.onMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Subject, err)
	}
	q.sub = sub
	return q, nil
}

func (q *NATSQueue) onMessage(msg *nats.Msg) {
	var wb wireBatch
	if err := json.Unmarshal(msg.Data, &wb); err != nil {
		return
	}

	retries := 0
	if msg.Header != nil {
		if v := msg.Header.Get(retryHeader); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				retries = n
			}
		}
	}

	batch := &Batch{Spans: wb.Spans, attempt: retries}

	q.deliveries <- Delivery{
		Batch: batch,
		Ack:   func() {},
		Nack:  func() { q.republishOrDLQ(batch, msg.Data) },
	}
}

func (q *NATSQueue) republishOrDLQ(batch *Batch, raw []byte) {
	batch.attempt++
	if batch.attempt >= MaxRetries {
		_ = q.nc.Publish(DLQSubject, raw)
		return
	}

	retryMsg := nats.NewMsg(Subject)
	retryMsg.Data = raw
	retryMsg.Header = nats.Header{}
	retryMsg.Header.Set(retryHeader, strconv.Itoa(batch.attempt))
	_ = q.nc.PublishMsg(retryMsg)
}

func (q *NATSQueue) Publish(ctx context.Context, batch *Batch) error {
	data, err := json.Marshal(wireBatch{Spans: batch.Spans})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := q.nc.Publish(Subject, data); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

func (q *NATSQueue) Subscribe(ctx context.Context) <-chan Delivery {
	return q.deliveries
}

// Depth is unavailable for an external broker without a management API
// call; callers treat 0 as "unknown, assume healthy".
func (q *NATSQueue) Depth() int { return 0 }

func (q *NATSQueue) Close() error {
	if q.sub != nil {
		_ = q.sub.Unsubscribe()
	}
	close(q.deliveries)
	q.nc.Close()
	return nil
}
