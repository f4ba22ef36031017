package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tracecore/tracecore/internal/domain/baseline"
)

// BaselineStore is an in-memory storage.BaselineStore.
type BaselineStore struct {
	mu    sync.RWMutex
	rows  map[baseline.Key]*baseline.CostBaseline
}

func NewBaselineStore() *BaselineStore {
	return &BaselineStore{rows: make(map[baseline.Key]*baseline.CostBaseline)}
}

func (s *BaselineStore) Upsert(ctx context.Context, b *baseline.CostBaseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := baseline.Key{ServiceName: b.ServiceName, Endpoint: b.Endpoint, WindowSize: b.WindowSize}
	if existing, ok := s.rows[key]; ok && existing.LastUpdated.After(b.LastUpdated) {
		// Baseline monotonicity (§8): never move LastUpdated backwards.
		return nil
	}
	cp := *b
	s.rows[key] = &cp
	return nil
}

func (s *BaselineStore) Get(ctx context.Context, key baseline.Key) (*baseline.CostBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.rows[key]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *BaselineStore) GarbageCollect(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, b := range s.rows {
		if b.LastUpdated.Before(olderThan) {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}
