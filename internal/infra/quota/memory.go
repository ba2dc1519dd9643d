package quota

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryStore keeps windows in process. Counts are lost on restart.
type MemoryStore struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows *cache.Cache
}

func NewMemoryStore(limit int, period time.Duration) *MemoryStore {
	return &MemoryStore{
		limit:   limit,
		period:  period,
		now:     time.Now,
		windows: cache.New(period, 2*period),
	}
}

func (s *MemoryStore) Allow(ctx context.Context, key string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var w *window
	if v, ok := s.windows.Get(key); ok {
		w = v.(*window)
	}
	if w == nil || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(s.period)}
		s.windows.Set(key, w, s.period)
	}
	w.count++
	return decide(w.count, s.limit, w.resetAt), nil
}

var _ Store = (*MemoryStore)(nil)
