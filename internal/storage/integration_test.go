//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	logx "coderelay/pkg/logx"
)

// StoreSuite runs the same contract against a containerised backend.
type StoreSuite struct {
	suite.Suite
	container testcontainers.Container
	open      func() Store
	reset     func()
}

func (s *StoreSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *StoreSuite) SetupTest() {
	if s.reset != nil {
		s.reset()
	}
}

func (s *StoreSuite) TestLoadMissingIsNil() {
	st := s.open()
	defer st.Close()
	b, err := st.Load(context.Background(), NamespaceCodes)
	s.Require().NoError(err)
	s.Require().Nil(b)
}

func (s *StoreSuite) TestSaveSurvivesReopen() {
	ctx := context.Background()
	st := s.open()
	s.Require().NoError(st.Save(ctx, NamespaceCodes, []byte(`{"001":"a"}`)))
	s.Require().NoError(st.Save(ctx, NamespaceCodes, []byte(`{"001":"b"}`)))
	s.Require().NoError(st.Save(ctx, NamespaceSubscribers, []byte(`[5]`)))
	s.Require().NoError(st.AppendAudit(ctx, AuditEntry{ActorID: 1, Action: "code.set", Target: "001"}))
	s.Require().NoError(st.Close())

	st = s.open()
	defer st.Close()
	codes, err := LoadCodes(ctx, st, logx.Nop())
	s.Require().NoError(err)
	s.Require().Equal(map[string]string{"001": "b"}, codes)
	subs, err := LoadSubscribers(ctx, st, logx.Nop())
	s.Require().NoError(err)
	s.Require().Len(subs, 1)
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redis connection string: %v", err)
	}
	s := &StoreSuite{container: container}
	s.open = func() Store {
		st, err := Open(ctx, Config{Driver: "redis", DSN: url}, logx.Nop())
		s.Require().NoError(err)
		return st
	}
	s.reset = func() {
		opts, err := redis.ParseURL(url)
		s.Require().NoError(err)
		c := redis.NewClient(opts)
		defer c.Close()
		s.Require().NoError(c.FlushAll(ctx).Err())
	}
	suite.Run(t, s)
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("coderelay_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		pgmodule.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("getting connection string: %v", err)
	}
	s := &StoreSuite{container: container}
	s.open = func() Store {
		st, err := Open(ctx, Config{Driver: "postgres", DSN: dsn}, logx.Nop())
		s.Require().NoError(err)
		return st
	}
	s.reset = func() {
		st := s.open()
		defer st.Close()
		ps := st.(*postgresStore)
		_, err := ps.pool.Exec(ctx, `TRUNCATE relay_kv, relay_audit`)
		s.Require().NoError(err)
	}
	suite.Run(t, s)
}
