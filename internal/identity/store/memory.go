package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"steward/internal/identity"
	"steward/pkg/sentinel"
)

// In-memory stores back the unit tests. They intentionally favor clarity over
// performance and mirror the semantics of the Postgres stores, including
// returning ErrNotFound from deletes that matched nothing.
type MemoryIdentities struct {
	mu      sync.RWMutex
	records map[uuid.UUID]identity.Identity
}

func NewMemoryIdentities() *MemoryIdentities {
	return &MemoryIdentities{records: make(map[uuid.UUID]identity.Identity)}
}

func (s *MemoryIdentities) Put(rec identity.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *MemoryIdentities) List(_ context.Context) ([]identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.Identity, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortIdentities(out)
	return out, nil
}

func (s *MemoryIdentities) FindByEmail(_ context.Context, email string) ([]identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	norm := identity.NormalizeEmail(email)
	var out []identity.Identity
	for _, rec := range s.records {
		if identity.NormalizeEmail(rec.Email) == norm {
			out = append(out, rec)
		}
	}
	sortIdentities(out)
	return out, nil
}

func (s *MemoryIdentities) DeleteByID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

type MemoryProfiles struct {
	mu      sync.RWMutex
	records map[uuid.UUID]identity.Profile
}

func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{records: make(map[uuid.UUID]identity.Profile)}
}

func (s *MemoryProfiles) Put(rec identity.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *MemoryProfiles) List(_ context.Context) ([]identity.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.Profile, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortProfiles(out)
	return out, nil
}

func (s *MemoryProfiles) FindByEmail(_ context.Context, email string) ([]identity.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	norm := identity.NormalizeEmail(email)
	var out []identity.Profile
	for _, rec := range s.records {
		if identity.NormalizeEmail(rec.Email) == norm {
			out = append(out, rec)
		}
	}
	sortProfiles(out)
	return out, nil
}

func (s *MemoryProfiles) DeleteByID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryProfiles) DeleteByEmail(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	norm := identity.NormalizeEmail(email)
	deleted := false
	for id, rec := range s.records {
		if identity.NormalizeEmail(rec.Email) == norm {
			delete(s.records, id)
			deleted = true
		}
	}
	if !deleted {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *MemoryProfiles) UpdateEmail(_ context.Context, id uuid.UUID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Email = email
	s.records[id] = rec
	return nil
}

func sortIdentities(recs []identity.Identity) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID.String() < recs[j].ID.String()
	})
}

func sortProfiles(recs []identity.Profile) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID.String() < recs[j].ID.String()
	})
}
