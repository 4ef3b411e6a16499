package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"steward/internal/backup"
	"steward/internal/entity"
)

// Dependent is a minimal dependent or child row for the in-memory store: tests
// only care about identity and ownership. For child tables OwnerID holds the
// parent row's id, not a restaurant id.
type Dependent struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Label   string
}

// Memory backs the unit tests with the same semantics as the Postgres store.
type Memory struct {
	mu          sync.RWMutex
	restaurants map[uuid.UUID]entity.Restaurant
	dependents  map[string][]Dependent
}

func NewMemory() *Memory {
	m := &Memory{
		restaurants: make(map[uuid.UUID]entity.Restaurant),
		dependents:  make(map[string][]Dependent),
	}
	for _, name := range entity.WipeTables() {
		m.dependents[name] = nil
	}
	return m
}

func (m *Memory) Put(rec entity.Restaurant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restaurants[rec.ID] = rec
}

// AddDependent appends a dependent or child row; test helper.
func (m *Memory) AddDependent(table string, dep Dependent) error {
	if !entity.IsWipeTable(table) {
		return fmt.Errorf("%q is not a dependent table", table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dependents[table] = append(m.dependents[table], dep)
	return nil
}

// DependentsOf returns all rows owned by the given restaurant; test helper.
func (m *Memory) DependentsOf(table string, ownerID uuid.UUID) []Dependent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Dependent
	for _, dep := range m.dependents[table] {
		if dep.OwnerID == ownerID {
			out = append(out, dep)
		}
	}
	return out
}

func (m *Memory) List(_ context.Context) ([]entity.Restaurant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entity.Restaurant, 0, len(m.restaurants))
	for _, rec := range m.restaurants {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (m *Memory) Delete(_ context.Context, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.restaurants[id]; ok {
			delete(m.restaurants, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Reassign(_ context.Context, table string, oldID, newID uuid.UUID) (int64, error) {
	if !entity.IsDependentTable(table) {
		return 0, fmt.Errorf("%q is not a dependent table", table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	rows := m.dependents[table]
	for i := range rows {
		if rows[i].OwnerID == oldID {
			rows[i].OwnerID = newID
			n++
		}
	}
	m.dependents[table] = rows
	return n, nil
}

func (m *Memory) CountDependents(_ context.Context, table string, ownerID uuid.UUID) (int64, error) {
	if !entity.IsDependentTable(table) {
		return 0, fmt.Errorf("%q is not a dependent table", table)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, dep := range m.dependents[table] {
		if dep.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeleteDependents(_ context.Context, table string) (int64, error) {
	if !entity.IsWipeTable(table) {
		return 0, fmt.Errorf("%q is not a dependent table", table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.dependents[table]))
	m.dependents[table] = nil
	return n, nil
}

func (m *Memory) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.restaurants))
	m.restaurants = make(map[uuid.UUID]entity.Restaurant)
	return n, nil
}

func (m *Memory) Snapshot(_ context.Context) (backup.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := backup.NewSnapshot()
	snap.TakenAt = time.Now()

	var restaurants []map[string]any
	for _, rec := range m.restaurants {
		restaurants = append(restaurants, map[string]any{
			"id":             rec.ID.String(),
			"name":           rec.Name,
			"township":       rec.Township,
			"phone":          rec.Phone,
			"address":        rec.Address,
			"contact_person": rec.ContactPerson,
			"remarks":        rec.Remarks,
			"created_at":     rec.CreatedAt,
		})
	}
	snap.Tables["restaurants"] = restaurants
	snap.Counts["restaurants"] = int64(len(restaurants))

	for _, name := range entity.WipeTables() {
		fk, _ := entity.OwnerColumn(name)
		var rows []map[string]any
		for _, dep := range m.dependents[name] {
			rows = append(rows, map[string]any{
				"id":    dep.ID.String(),
				fk:      dep.OwnerID.String(),
				"label": dep.Label,
			})
		}
		snap.Tables[name] = rows
		snap.Counts[name] = int64(len(rows))
	}
	return snap, nil
}
