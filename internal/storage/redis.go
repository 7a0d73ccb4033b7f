package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	logx "coderelay/pkg/logx"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "coderelay:"
	redisAuditKey  = redisKeyPrefix + "audit"
	// Audit is a capped list; older entries are trimmed on append.
	redisAuditMax = 10000
)

type redisStore struct {
	client *redis.Client
	log    logx.Logger
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for redis driver")
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedis(client, log), nil
}

// NewRedis wraps an existing client. The store owns it and closes it on Close.
func NewRedis(client *redis.Client, log logx.Logger) Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &redisStore{client: client, log: log}
}

func redisNSKey(ns Namespace) string { return redisKeyPrefix + "ns:" + string(ns) }

func (s *redisStore) Load(ctx context.Context, ns Namespace) ([]byte, error) {
	if err := validNamespace(ns); err != nil {
		return nil, err
	}
	b, err := s.client.Get(ctx, redisNSKey(ns)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ns, err)
	}
	return b, nil
}

// Save relies on SET replacing the value in a single atomic step.
func (s *redisStore) Save(ctx context.Context, ns Namespace, payload []byte) error {
	if err := validNamespace(ns); err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisNSKey(ns), payload, 0).Err(); err != nil {
		return fmt.Errorf("save %s: %w", ns, err)
	}
	return nil
}

func (s *redisStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, redisAuditKey, b)
		p.LTrim(ctx, redisAuditKey, 0, redisAuditMax-1)
		return nil
	})
	return err
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
