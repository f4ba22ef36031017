// Package baseline maintains the rolling per-(service, endpoint, window)
// cost/latency percentile buffers described in §4.4, and periodically
// upserts them into the CostBaseline store.
package baseline

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	baselinedomain "github.com/tracecore/tracecore/internal/domain/baseline"
	"github.com/tracecore/tracecore/internal/logging"
	"github.com/tracecore/tracecore/internal/storage"
)

type sample struct {
	value float64
	at    time.Time
}

// partition is one (service, endpoint, window)'s rolling buffer, guarded by
// its own mutex per §5 ("partitioned by (service, endpoint); each partition
// guarded by its own mutex").
type partition struct {
	mu          sync.Mutex
	costs       []sample
	latencies   []sample
	sinceRecompute int
}

// key identifies a partition.
type key struct {
	service  string
	endpoint string
	window   baselinedomain.WindowSize
}

// Engine owns every partition and periodically flushes recomputed
// percentiles to the BaselineStore.
type Engine struct {
	store storage.BaselineStore

	sampleCap    int
	updatePeriod time.Duration
	updateDelta  int

	mu         sync.RWMutex
	partitions map[key]*partition

	logger *logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine builds an Engine. sampleCap bounds each partition's ring buffer
// (default 10k per §4.4); updatePeriod/updateDelta control recompute
// cadence (default 60s / 100 samples). logger defaults to logging.NewDefault
// if nil.
func NewEngine(store storage.BaselineStore, sampleCap int, updatePeriod time.Duration, updateDelta int, logger *logging.Logger) *Engine {
	if sampleCap <= 0 {
		sampleCap = 10000
	}
	if updatePeriod <= 0 {
		updatePeriod = 60 * time.Second
	}
	if updateDelta <= 0 {
		updateDelta = 100
	}
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Engine{
		store:        store,
		sampleCap:    sampleCap,
		updatePeriod: updatePeriod,
		updateDelta:  updateDelta,
		partitions:   make(map[key]*partition),
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// Start launches the periodic recompute ticker. Cancel ctx or call Stop to
// halt it.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.updatePeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.RecomputeAll(ctx)
			case <-e.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the periodic recompute goroutine and waits for it to exit.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

func (e *Engine) getOrCreatePartition(k key) *partition {
	e.mu.RLock()
	p, ok := e.partitions[k]
	e.mu.RUnlock()
	if ok {
		return p
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.partitions[k]; ok {
		return p
	}
	p = &partition{}
	e.partitions[k] = p
	return p
}

// Sample appends a (cost, latency) observation for every active window of
// (service, endpoint), and triggers a recompute for any window whose
// update_delta has been reached (§4.4's "whichever comes first").
func (e *Engine) Sample(ctx context.Context, service, endpoint string, cost, latencyMs float64, now time.Time) {
	for _, w := range baselinedomain.Windows {
		k := key{service: service, endpoint: endpoint, window: w}
		p := e.getOrCreatePartition(k)

		p.mu.Lock()
		p.costs = appendBounded(p.costs, sample{value: cost, at: now}, e.sampleCap)
		p.latencies = appendBounded(p.latencies, sample{value: latencyMs, at: now}, e.sampleCap)
		p.sinceRecompute++
		due := p.sinceRecompute >= e.updateDelta
		if due {
			p.sinceRecompute = 0
		}
		p.mu.Unlock()

		if due {
			e.recomputeOne(ctx, k, now)
		}
	}
}

func appendBounded(buf []sample, s sample, cap int) []sample {
	buf = append(buf, s)
	if len(buf) > cap {
		buf = buf[len(buf)-cap:]
	}
	return buf
}

// Get returns the most recently computed baseline for key, or nil if none
// exists yet.
func (e *Engine) Get(ctx context.Context, k baselinedomain.Key) (*baselinedomain.CostBaseline, error) {
	return e.store.Get(ctx, k)
}

// RecomputeAll walks every partition and recomputes its percentiles,
// regardless of whether update_delta was reached — the time-based trigger.
func (e *Engine) RecomputeAll(ctx context.Context) {
	e.mu.RLock()
	keys := make([]key, 0, len(e.partitions))
	for k := range e.partitions {
		keys = append(keys, k)
	}
	e.mu.RUnlock()

	now := time.Now()
	for _, k := range keys {
		e.recomputeOne(ctx, k, now)
	}
}

func (e *Engine) recomputeOne(ctx context.Context, k key, now time.Time) {
	p := e.getOrCreatePartition(k)

	// Snapshot under lock, sort outside it (§5: "percentile recompute reads
	// a snapshot copy to avoid holding the mutex during sort").
	p.mu.Lock()
	cutoff := now.Add(-k.window.Duration())
	costsCopy := filterSince(p.costs, cutoff)
	latsCopy := filterSince(p.latencies, cutoff)
	p.costs = costsCopy
	p.latencies = latsCopy
	p.mu.Unlock()

	if len(costsCopy) == 0 {
		// Empty buffer: record skipped (§4.4).
		return
	}

	costValues := values(costsCopy)
	latValues := values(latsCopy)
	sort.Float64s(costValues)
	sort.Float64s(latValues)

	b := &baselinedomain.CostBaseline{
		ServiceName: k.service,
		Endpoint:    k.endpoint,
		WindowSize:  k.window,
		P50Cost:     nearestRank(costValues, 0.50),
		P95Cost:     nearestRank(costValues, 0.95),
		P99Cost:     nearestRank(costValues, 0.99),
		P50Latency:  nearestRank(latValues, 0.50),
		P95Latency:  nearestRank(latValues, 0.95),
		P99Latency:  nearestRank(latValues, 0.99),
		SampleCount: len(costValues),
		LastUpdated: now,
	}

	if err := e.store.Upsert(ctx, b); err != nil {
		e.logger.LogDegraded("baseline_upsert_failed", logrus.Fields{
			"service": k.service, "endpoint": k.endpoint, "window": k.window, "error": err,
		})
	}
}

func filterSince(buf []sample, cutoff time.Time) []sample {
	out := buf[:0:0]
	for _, s := range buf {
		if s.at.After(cutoff) || s.at.Equal(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func values(buf []sample) []float64 {
	out := make([]float64, len(buf))
	for i, s := range buf {
		out[i] = s.value
	}
	return out
}

// nearestRank implements the nearest-rank percentile definition over a
// sorted slice (§4.4).
func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
