// Package worker runs the fixed-order per-span enrichment pipeline (§4.3):
// normalize -> cost -> hash -> persist -> baseline sample -> anomaly eval.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tracecore/tracecore/internal/anomaly"
	alertdomain "github.com/tracecore/tracecore/internal/domain/alert"
	"github.com/tracecore/tracecore/internal/domain/span"
	"github.com/tracecore/tracecore/internal/hashutil"
	"github.com/tracecore/tracecore/internal/logging"
	"github.com/tracecore/tracecore/internal/pricing"
	"github.com/tracecore/tracecore/internal/queue"
	"github.com/tracecore/tracecore/internal/storage"
)

// BaselineSampler is the subset of the baseline engine the pool needs.
type BaselineSampler interface {
	Sample(ctx context.Context, service, endpoint string, cost, latencyMs float64, now time.Time)
}

// AlertSink receives alerts minted by the anomaly engine — normally just a
// log line, since delivery (email/Slack/etc.) is out of scope (§1 non-goals).
type AlertSink interface {
	Notify(ctx context.Context, a *alertdomain.Alert)
}

// LogAlertSink logs emitted alerts at warn level via the shared Logger.
type LogAlertSink struct {
	Logger *logging.Logger
}

func (s LogAlertSink) Notify(ctx context.Context, a *alertdomain.Alert) {
	s.Logger.WithContext(ctx).WithField("alert_type", a.AlertType).
		WithField("severity", a.Severity).
		WithField("service", a.ServiceName).
		Warn("anomaly alert raised")
}

// Pool drives N worker goroutines pulling batches from a queue.Queue, each
// running every span through the enrichment pipeline in order.
type Pool struct {
	queue       queue.Queue
	spans       storage.SpanStore
	prices      *pricing.Table
	baselines   BaselineSampler
	anomalies   *anomaly.Engine
	alertSink   AlertSink
	modalHashes *hashutil.ModalTracker
	logger      *logging.Logger

	workerCount int

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once

	busy  int64
	total int64
}

// NewPool builds a worker Pool. workerCount defaults to 4 if <= 0.
func NewPool(
	q queue.Queue,
	spans storage.SpanStore,
	prices *pricing.Table,
	baselines BaselineSampler,
	anomalies *anomaly.Engine,
	alertSink AlertSink,
	logger *logging.Logger,
	workerCount int,
) *Pool {
	if workerCount <= 0 {
		workerCount = 4
	}
	return &Pool{
		queue:       q,
		spans:       spans,
		prices:      prices,
		baselines:   baselines,
		anomalies:   anomalies,
		alertSink:   alertSink,
		modalHashes: hashutil.NewModalTracker(),
		logger:      logger,
		workerCount: workerCount,
		stop:        make(chan struct{}),
	}
}

// Start launches the pool's workers. Call Stop (or cancel ctx) to shut down.
func (p *Pool) Start(ctx context.Context) {
	deliveries := p.queue.Subscribe(ctx)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, deliveries)
	}
}

func (p *Pool) runWorker(ctx context.Context, deliveries <-chan queue.Delivery) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.process(ctx, d)
		}
	}
}

func (p *Pool) process(ctx context.Context, d queue.Delivery) {
	atomic.AddInt64(&p.busy, 1)
	defer atomic.AddInt64(&p.busy, -1)

	transientFailure := false
	for _, s := range d.Batch.Spans {
		if err := p.enrichOne(ctx, s); err != nil {
			p.logger.WithContext(ctx).WithField("trace_id", s.TraceID).WithField("error", err).
				Error("span enrichment failed")
			transientFailure = true
			continue
		}
		atomic.AddInt64(&p.total, 1)
	}

	if transientFailure && d.Batch.Attempt() < queue.MaxRetries {
		d.Nack()
		return
	}
	d.Ack()
}

// enrichOne runs the fixed pipeline order from §4.3. Persistence failures
// are the only ones treated as transient (worth a retry); every other step
// degrades gracefully and is recorded in the span's metadata rather than
// aborting the pipeline.
func (p *Pool) enrichOne(ctx context.Context, s *span.Span) error {
	normalize(s)

	costUncertain := p.applyCost(s)

	if s.Response != "" {
		s.ResponseHash = hashutil.ResponseHash(s.Response)
		similarity := p.modalHashes.Observe(s.ServiceName, s.Endpoint, s.ResponseHash)
		s.HashSimilarity = &similarity
	}

	if costUncertain {
		if s.Metadata == nil {
			s.Metadata = make(map[string]interface{})
		}
		s.Metadata["cost_uncertain"] = true
	}

	if err := p.spans.Upsert(ctx, s); err != nil {
		return err
	}

	now := s.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	if p.baselines != nil {
		p.baselines.Sample(ctx, s.ServiceName, s.Endpoint, s.CostUSD, s.LatencyMs, now)
	}

	if p.anomalies != nil {
		a, err := p.anomalies.Evaluate(ctx, s, now)
		if err != nil {
			p.logger.WithContext(ctx).WithField("error", err).Warn("anomaly evaluation failed")
		} else if a != nil && p.alertSink != nil {
			p.alertSink.Notify(ctx, a)
		}
	}

	return nil
}

// normalize fills in derived/defaulted fields before the cost step runs.
func normalize(s *span.Span) {
	if s.Environment == "" {
		s.Environment = span.EnvironmentLive
	}
	if s.Status == "" {
		s.Status = span.StatusSuccess
	}
}

// applyCost computes CostUSD from token counts and the pricing table when
// the client didn't already supply cost_usd on the wire, reporting whether
// the fallback rate had to be used (§4.3 step 2).
func (p *Pool) applyCost(s *span.Span) bool {
	if s.CostProvided {
		return false
	}
	if s.PromptTokens == nil && s.CompletionTokens == nil {
		return false
	}

	rate, found := p.prices.Lookup(string(s.Provider), s.Model)

	var promptTokens, completionTokens int
	if s.PromptTokens != nil {
		promptTokens = *s.PromptTokens
	}
	if s.CompletionTokens != nil {
		completionTokens = *s.CompletionTokens
	}

	s.CostUSD = (float64(promptTokens)/1_000_000)*rate.InputPerM + (float64(completionTokens)/1_000_000)*rate.OutputPerM
	return !found
}

// Stop halts every worker and waits for in-flight batches to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// Health reports the pool's current load for the /health aggregate endpoint.
type Health struct {
	WorkerCount  int   `json:"worker_count"`
	Busy         int64 `json:"busy"`
	TotalEnriched int64 `json:"total_enriched"`
}

func (p *Pool) Health() Health {
	return Health{
		WorkerCount:   p.workerCount,
		Busy:          atomic.LoadInt64(&p.busy),
		TotalEnriched: atomic.LoadInt64(&p.total),
	}
}
