package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "coderelay/pkg/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS relay_kv (
  ns TEXT PRIMARY KEY,
  payload BYTEA NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS relay_audit (
  id BIGSERIAL PRIMARY KEY,
  at TIMESTAMPTZ NOT NULL,
  audit_id TEXT,
  actor_id BIGINT NOT NULL,
  actor_username TEXT,
  chat_id BIGINT NOT NULL,
  action TEXT NOT NULL,
  target TEXT NOT NULL,
  ok INTEGER NOT NULL,
  fail INTEGER NOT NULL,
  err TEXT,
  took_ms BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relay_audit_at ON relay_audit(at);
`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	st := &postgresStore{pool: pool, log: log}
	if err := st.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return st, nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *postgresStore) Load(ctx context.Context, ns Namespace) ([]byte, error) {
	if err := validNamespace(ns); err != nil {
		return nil, err
	}
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM relay_kv WHERE ns = $1`, string(ns)).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", ns, err)
	}
	return payload, nil
}

func (s *postgresStore) Save(ctx context.Context, ns Namespace, payload []byte) error {
	if err := validNamespace(ns); err != nil {
		return err
	}
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_kv (ns, payload, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (ns) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, string(ns), payload)
	if err != nil {
		return fmt.Errorf("saving %s: %w", ns, err)
	}
	return nil
}

func (s *postgresStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_audit (at, audit_id, actor_id, actor_username, chat_id, action, target, ok, fail, err, took_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		e.At, nullString(e.ID), e.ActorID, nullString(e.ActorUsername), e.ChatID,
		e.Action, e.Target, e.OK, e.Fail, nullString(e.Error), e.TookMS,
	)
	if err != nil {
		return fmt.Errorf("inserting audit: %w", err)
	}
	return nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
