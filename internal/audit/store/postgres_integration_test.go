//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"steward/internal/audit"
	"steward/internal/audit/store"
	"steward/pkg/testutil/containers"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id           uuid PRIMARY KEY,
	action       text NOT NULL,
	table_name   text,
	record_count bigint NOT NULL DEFAULT 0,
	details      jsonb,
	actor        text NOT NULL DEFAULT '',
	request_id   text NOT NULL DEFAULT '',
	created_at   timestamptz NOT NULL DEFAULT now()
);
`

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	ctx      context.Context
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T())
	s.postgres.Exec(s.T(), auditSchema)
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *AuditStoreSuite) TearDownSuite() {
	_ = s.postgres.DB.Close()
	_ = s.postgres.Container.Terminate(context.Background())
}

func (s *AuditStoreSuite) SetupTest() {
	s.postgres.Exec(s.T(), `TRUNCATE audit_log`)
}

func (s *AuditStoreSuite) TestAppendAndListRoundTrip() {
	entry := audit.Entry{
		ID:          uuid.New(),
		Action:      audit.ActionMerge,
		TableName:   "restaurants",
		RecordCount: 2,
		Details:     map[string]any{"keep_id": uuid.NewString(), "removed": float64(2)},
		Actor:       "alice",
		RequestID:   "req-123",
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(s.store.Append(s.ctx, entry))

	got, err := s.store.ListRecent(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(entry.ID, got[0].ID)
	s.Equal(entry.Action, got[0].Action)
	s.Equal(entry.TableName, got[0].TableName)
	s.Equal(entry.RecordCount, got[0].RecordCount)
	s.Equal(entry.Details, got[0].Details)
	s.Equal(entry.Actor, got[0].Actor)
}

func (s *AuditStoreSuite) TestAppendIsIdempotentOnID() {
	entry := audit.Entry{
		ID:        uuid.New(),
		Action:    audit.ActionWipe,
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.store.Append(s.ctx, entry))
	s.Require().NoError(s.store.Append(s.ctx, entry))

	got, err := s.store.ListRecent(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *AuditStoreSuite) TestListRecentNewestFirstWithLimit() {
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Append(s.ctx, audit.Entry{
			ID:        uuid.New(),
			Action:    audit.ActionRepair,
			Actor:     "alice",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.store.ListRecent(s.ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.True(got[0].CreatedAt.After(got[1].CreatedAt))
	s.True(got[1].CreatedAt.After(got[2].CreatedAt))
}
