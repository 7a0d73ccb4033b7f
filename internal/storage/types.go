package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Namespace names an independently persisted collection.
type Namespace string

const (
	NamespaceCodes       Namespace = "codes"
	NamespaceSubscribers Namespace = "subscribers"
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot per namespace (write temp, fsync, rename) + audit jsonl
//   - "sqlite": SQLite database file (pure Go driver)
//   - "redis": Redis URL in DSN
//   - "postgres": PostgreSQL DSN
//   - "memory": process-local, nothing survives a restart
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the relay core.
//
// Load returns (nil, nil) when nothing was ever saved under ns.
// Save replaces the namespace payload atomically: after a crash either the
// previous or the new payload is observable, never a mix.
type Store interface {
	Load(ctx context.Context, ns Namespace) ([]byte, error)
	Save(ctx context.Context, ns Namespace, payload []byte) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditEntry records an operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ID            string    `json:"id,omitempty"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            int       `json:"ok"`
	Fail          int       `json:"fail"`
	Error         string    `json:"error,omitempty"`
	TookMS        int64     `json:"took_ms"`
}
