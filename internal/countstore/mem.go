package countstore

import (
	"context"
	"sync"
	"time"
)

// MemCountStore is an in-process CountStore used when no Redis URL is
// configured and in tests. Counters are lost on restart; trigger caps are
// best-effort, not a correctness guarantee.
type MemCountStore struct {
	mu     sync.Mutex
	counts map[string]int
	now    func() time.Time
}

// NewMemCountStore creates an empty in-memory count store.
func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		counts: make(map[string]int),
		now:    time.Now,
	}
}

// GetCount returns the counter for the current period bucket.
func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[periodBucket(name, val, period, s.now())], nil
}

// Increment bumps the counter in every period bucket.
func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		s.counts[periodBucket(name, val, period, s.now())]++
	}
	return nil
}
