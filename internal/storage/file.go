package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "coderelay/pkg/logx"
)

// fileStore keeps one JSON snapshot per namespace next to an audit journal.
//
// Files:
//   - <prefix>.<namespace>.json (replaced via temp file + rename)
//   - <prefix>.audit.jsonl      (append-only JSON Lines)
type fileStore struct {
	log    logx.Logger
	prefix string

	mu        sync.Mutex
	auditFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Leftover temp files from an interrupted Save are never the live copy.
	if leftovers, _ := filepath.Glob(prefix + ".*.json.tmp-*"); len(leftovers) > 0 {
		for _, p := range leftovers {
			_ = os.Remove(p)
		}
		log.Debug("removed stale temp files", logx.Int("count", len(leftovers)))
	}

	return &fileStore{log: log, prefix: prefix, auditFile: af}, nil
}

func (s *fileStore) nsPath(ns Namespace) string {
	return s.prefix + "." + string(ns) + ".json"
}

func (s *fileStore) Load(ctx context.Context, ns Namespace) ([]byte, error) {
	_ = ctx
	if err := validNamespace(ns); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.nsPath(ns))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ns, err)
	}
	return b, nil
}

func (s *fileStore) Save(ctx context.Context, ns Namespace, payload []byte) error {
	_ = ctx
	if err := validNamespace(ns); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrDisabled
	}
	return writeFileAtomic(s.nsPath(ns), payload)
}

// writeFileAtomic writes to a sibling temp file, fsyncs it and renames it
// over path. The rename is atomic on POSIX filesystems.
func writeFileAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		cleanup()
		return err
	}
	// Persist the directory entry too. Not every platform supports it.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
