//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"steward/internal/entity"
	"steward/internal/entity/store"
	"steward/pkg/testutil/containers"
)

const entitySchema = `
CREATE TABLE IF NOT EXISTS restaurants (
	id             uuid PRIMARY KEY,
	name           text,
	township       text,
	phone          text,
	address        text,
	contact_person text,
	remarks        text,
	created_at     timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS orders      (id uuid PRIMARY KEY, restaurant_id uuid, label text);
CREATE TABLE IF NOT EXISTS leads       (id uuid PRIMARY KEY, restaurant_id uuid, label text);
CREATE TABLE IF NOT EXISTS visit_tasks (id uuid PRIMARY KEY, restaurant_id uuid, label text);
CREATE TABLE IF NOT EXISTS notes       (id uuid PRIMARY KEY, restaurant_id uuid, label text);
CREATE TABLE IF NOT EXISTS voice_notes (id uuid PRIMARY KEY, restaurant_id uuid, label text);
CREATE TABLE IF NOT EXISTS call_logs   (id uuid PRIMARY KEY, restaurant_id uuid, label text);
CREATE TABLE IF NOT EXISTS order_items (id uuid PRIMARY KEY, order_id uuid REFERENCES orders (id), label text);
CREATE TABLE IF NOT EXISTS meetings    (id uuid PRIMARY KEY, lead_id  uuid REFERENCES leads (id),  label text);
`

type EntityStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	ctx      context.Context
}

func TestEntityStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(EntityStoreSuite))
}

func (s *EntityStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T())
	s.postgres.Exec(s.T(), entitySchema)
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *EntityStoreSuite) TearDownSuite() {
	_ = s.postgres.DB.Close()
	_ = s.postgres.Container.Terminate(context.Background())
}

func (s *EntityStoreSuite) SetupTest() {
	s.postgres.Exec(s.T(),
		`TRUNCATE restaurants, orders, leads, visit_tasks, notes, voice_notes, call_logs,
		 order_items, meetings`)
}

func (s *EntityStoreSuite) putRestaurant(name string) uuid.UUID {
	id := uuid.New()
	_, err := s.postgres.DB.Exec(`
		INSERT INTO restaurants (id, name, township, phone, created_at)
		VALUES ($1, $2, 'Hlaing', '09111111', now())
	`, id, name)
	s.Require().NoError(err)
	return id
}

func (s *EntityStoreSuite) putDependent(table string, ownerID uuid.UUID) uuid.UUID {
	s.Require().True(entity.IsDependentTable(table))
	id := uuid.New()
	_, err := s.postgres.DB.Exec(
		`INSERT INTO `+table+` (id, restaurant_id, label) VALUES ($1, $2, 'row')`,
		id, ownerID)
	s.Require().NoError(err)
	return id
}

func (s *EntityStoreSuite) putChild(table string, parentID uuid.UUID) uuid.UUID {
	fk, ok := entity.OwnerColumn(table)
	s.Require().True(ok)
	id := uuid.New()
	_, err := s.postgres.DB.Exec(
		`INSERT INTO `+table+` (id, `+fk+`, label) VALUES ($1, $2, 'row')`,
		id, parentID)
	s.Require().NoError(err)
	return id
}

func (s *EntityStoreSuite) TestListOrdersByCreationThenID() {
	s.putRestaurant("First")
	time.Sleep(10 * time.Millisecond)
	s.putRestaurant("Second")

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("First", all[0].Name)
	s.Equal("Second", all[1].Name)
}

func (s *EntityStoreSuite) TestDeleteToleratesMissingIDs() {
	present := s.putRestaurant("Present")

	n, err := s.store.Delete(s.ctx, []uuid.UUID{present, uuid.New(), uuid.New()})
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *EntityStoreSuite) TestReassignMovesDependents() {
	keeper := s.putRestaurant("Keeper")
	dup := s.putRestaurant("Dup")
	s.putDependent("orders", dup)
	s.putDependent("orders", dup)
	s.putDependent("leads", dup)

	n, err := s.store.Reassign(s.ctx, "orders", dup, keeper)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	count, err := s.store.CountDependents(s.ctx, "orders", keeper)
	s.Require().NoError(err)
	s.Equal(int64(2), count)

	// Re-running the same reassignment touches nothing.
	n, err = s.store.Reassign(s.ctx, "orders", dup, keeper)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *EntityStoreSuite) TestReassignRejectsUnknownTable() {
	_, err := s.store.Reassign(s.ctx, "users; DROP TABLE restaurants", uuid.New(), uuid.New())
	s.Require().Error(err)
	_, err = s.store.CountDependents(s.ctx, "not_a_table", uuid.New())
	s.Require().Error(err)
	_, err = s.store.DeleteDependents(s.ctx, "not_a_table")
	s.Require().Error(err)

	// Child tables can be wiped but never reassigned: they carry no
	// restaurant FK.
	_, err = s.store.Reassign(s.ctx, "order_items", uuid.New(), uuid.New())
	s.Require().Error(err)
	_, err = s.store.DeleteDependents(s.ctx, "order_items")
	s.Require().NoError(err)
}

func (s *EntityStoreSuite) TestWipeOrderRespectsForeignKeys() {
	r := s.putRestaurant("Doomed")
	order := s.putDependent("orders", r)
	s.putChild("order_items", order)
	lead := s.putDependent("leads", r)
	s.putChild("meetings", lead)

	deleted := make(map[string]int64)
	for _, table := range entity.WipeTables() {
		n, err := s.store.DeleteDependents(s.ctx, table)
		s.Require().NoError(err, "delete %s", table)
		deleted[table] = n
	}
	s.Equal(int64(1), deleted["order_items"])
	s.Equal(int64(1), deleted["meetings"])
	s.Equal(int64(1), deleted["orders"])
	s.Equal(int64(1), deleted["leads"])

	n, err := s.store.DeleteAll(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *EntityStoreSuite) TestDeleteDependentsAndDeleteAll() {
	r := s.putRestaurant("Doomed")
	s.putDependent("orders", r)
	s.putDependent("call_logs", r)

	n, err := s.store.DeleteDependents(s.ctx, "orders")
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.store.DeleteAll(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *EntityStoreSuite) TestSnapshotCapturesEveryTable() {
	r := s.putRestaurant("Archived")
	order := s.putDependent("orders", r)
	s.putChild("order_items", order)
	s.putDependent("notes", r)
	s.putDependent("notes", r)

	snap, err := s.store.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), snap.Counts["restaurants"])
	s.Equal(int64(1), snap.Counts["orders"])
	s.Equal(int64(1), snap.Counts["order_items"])
	s.Equal(int64(2), snap.Counts["notes"])
	s.Equal(int64(5), snap.TotalRows())

	// Every dependent and child table appears even when empty.
	for _, table := range entity.WipeTables() {
		_, ok := snap.Counts[table]
		s.True(ok, "snapshot missing table %s", table)
	}

	rows := snap.Tables["restaurants"]
	s.Require().Len(rows, 1)
	s.Equal("Archived", rows[0]["name"])
}
