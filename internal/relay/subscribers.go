package relay

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"coderelay/internal/storage"
	logx "coderelay/pkg/logx"
)

// Subscribers is the set of ids that ever contacted the bot. Ids are never removed.
type Subscribers struct {
	store   storage.Store
	log     logx.Logger
	metrics *Metrics

	mu     sync.RWMutex
	ids    map[int64]struct{}
	loaded bool
}

// NewSubscribers loads the subscribers namespace. A missing or corrupt payload
// starts empty. An unreadable namespace starts degraded like Registry.
func NewSubscribers(ctx context.Context, st storage.Store, log logx.Logger, m *Metrics) *Subscribers {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Subscribers{
		store:   st,
		log:     log,
		metrics: m,
		ids:     map[int64]struct{}{},
	}
	s.mu.Lock()
	if err := s.loadLocked(ctx); err != nil {
		log.Warn("subscribers unreadable, directory degraded", logx.Err(err))
	}
	s.mu.Unlock()
	return s
}

func (s *Subscribers) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Reload retries the initial load if it failed.
func (s *Subscribers) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Subscribers) loadLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	ids, err := storage.LoadSubscribers(ctx, s.store, s.log)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	s.ids = ids
	s.loaded = true
	s.metrics.setSubscribers(len(ids))
	s.log.Debug("subscribers loaded", logx.Int("subscribers", len(ids)))
	return nil
}

// RegisterIfNew adds id and persists the set. Known ids return (false, nil)
// under the read lock without touching storage.
func (s *Subscribers) RegisterIfNew(ctx context.Context, id int64) (bool, error) {
	if s.Known(id) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return false, err
	}
	// Another caller may have registered id between the two locks.
	if _, known := s.ids[id]; known {
		return false, nil
	}
	next := maps.Clone(s.ids)
	if next == nil {
		next = map[int64]struct{}{}
	}
	next[id] = struct{}{}
	b, err := storage.EncodeSubscribers(next)
	if err != nil {
		return false, fmt.Errorf("%w: encode subscribers: %v", ErrStorageUnavailable, err)
	}
	if err := s.store.Save(ctx, storage.NamespaceSubscribers, b); err != nil {
		s.log.Error("subscribers save failed", logx.Err(err), logx.Int64("id", id))
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	s.ids = next
	s.metrics.setSubscribers(len(next))
	return true, nil
}

// Enumerate returns every known id once, ascending.
func (s *Subscribers) Enumerate() []int64 {
	s.mu.RLock()
	out := slices.Sorted(maps.Keys(s.ids))
	s.mu.RUnlock()
	if out == nil {
		out = []int64{}
	}
	return out
}

func (s *Subscribers) Known(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Subscribers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
