package relay

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"unicode/utf8"

	"coderelay/internal/storage"
	logx "coderelay/pkg/logx"
)

// Registry maps codes to reply texts.
//
// Writers hold the lock across encode, save and commit, so the durable copy
// never sees interleaved updates and memory only changes after a save succeeds.
type Registry struct {
	store   storage.Store
	log     logx.Logger
	metrics *Metrics

	mu     sync.RWMutex
	codes  map[string]string
	loaded bool
}

// NewRegistry loads the codes namespace. A missing or corrupt payload starts
// empty. When storage cannot be read the registry starts degraded: lookups
// miss and writes retry the load first, failing with ErrStorageUnavailable
// until it succeeds.
func NewRegistry(ctx context.Context, st storage.Store, log logx.Logger, m *Metrics) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{
		store:   st,
		log:     log,
		metrics: m,
		codes:   map[string]string{},
	}
	r.mu.Lock()
	if err := r.loadLocked(ctx); err != nil {
		log.Warn("codes unreadable, registry degraded", logx.Err(err))
	}
	r.mu.Unlock()
	return r
}

// Loaded reports whether the durable table has been read.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Reload retries the initial load if it failed. It is a no-op once loaded.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Registry) loadLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	codes, err := storage.LoadCodes(ctx, r.store, r.log)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	r.codes = codes
	r.loaded = true
	r.metrics.setCodes(len(codes))
	r.log.Debug("registry loaded", logx.Int("codes", len(codes)))
	return nil
}

func (r *Registry) Get(code string) (string, bool) {
	r.mu.RLock()
	text, ok := r.codes[code]
	r.mu.RUnlock()
	return text, ok
}

// Set upserts code. On a storage failure memory is left untouched.
// Code and text must be valid UTF-8; the JSON payload could not keep other bytes.
func (r *Registry) Set(ctx context.Context, code, text string) error {
	if code == "" || text == "" || !utf8.ValidString(code) || !utf8.ValidString(text) {
		return ErrBadRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(ctx); err != nil {
		return err
	}

	next := maps.Clone(r.codes)
	if next == nil {
		next = map[string]string{}
	}
	next[code] = text
	if err := r.persistLocked(ctx, next); err != nil {
		return err
	}
	r.codes = next
	r.metrics.setCodes(len(next))
	return nil
}

// Delete removes code and reports whether it existed. A missing code costs no write.
func (r *Registry) Delete(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(ctx); err != nil {
		return false, err
	}

	if _, ok := r.codes[code]; !ok {
		return false, nil
	}
	next := maps.Clone(r.codes)
	delete(next, code)
	if err := r.persistLocked(ctx, next); err != nil {
		return false, err
	}
	r.codes = next
	r.metrics.setCodes(len(next))
	return true, nil
}

// List returns all codes in lexicographic order.
func (r *Registry) List() []string {
	r.mu.RLock()
	out := slices.Sorted(maps.Keys(r.codes))
	r.mu.RUnlock()
	if out == nil {
		out = []string{}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.codes)
}

func (r *Registry) persistLocked(ctx context.Context, next map[string]string) error {
	b, err := storage.EncodeCodes(next)
	if err != nil {
		return fmt.Errorf("%w: encode codes: %v", ErrStorageUnavailable, err)
	}
	if err := r.store.Save(ctx, storage.NamespaceCodes, b); err != nil {
		r.log.Error("codes save failed", logx.Err(err))
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
