package storage

import (
	"context"
	"sync"
)

// Memory is a process-local Store. It is used by tests and by the "memory"
// driver for throwaway deployments.
type Memory struct {
	mu    sync.Mutex
	data  map[Namespace][]byte
	audit []AuditEntry

	// SaveErr, when set, is returned by Save without changing anything.
	SaveErr error
	// LoadErr, when set, is returned by Load.
	LoadErr error
}

func NewMemory() *Memory {
	return &Memory{data: map[Namespace][]byte{}}
}

func (m *Memory) Load(ctx context.Context, ns Namespace) ([]byte, error) {
	_ = ctx
	if err := validNamespace(ns); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	b, ok := m.data[ns]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Save(ctx context.Context, ns Namespace, payload []byte) error {
	_ = ctx
	if err := validNamespace(ns); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if m.data == nil {
		m.data = map[Namespace][]byte{}
	}
	m.data[ns] = append([]byte(nil), payload...)
	return nil
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	m.mu.Lock()
	m.audit = append(m.audit, e)
	m.mu.Unlock()
	return nil
}

// Audit returns a copy of the recorded audit entries.
func (m *Memory) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}

// SetSaveErr makes subsequent saves fail with err (nil restores them).
func (m *Memory) SetSaveErr(err error) {
	m.mu.Lock()
	m.SaveErr = err
	m.mu.Unlock()
}

// SetLoadErr makes subsequent loads fail with err (nil restores them).
func (m *Memory) SetLoadErr(err error) {
	m.mu.Lock()
	m.LoadErr = err
	m.mu.Unlock()
}

func (m *Memory) Close() error { return nil }
