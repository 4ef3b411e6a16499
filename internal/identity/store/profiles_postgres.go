package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"steward/internal/identity"
	"steward/pkg/sentinel"
)

// Profiles persists application profile records.
type Profiles struct {
	db *sql.DB
}

func NewProfiles(db *sql.DB) *Profiles {
	return &Profiles{db: db}
}

func (s *Profiles) List(ctx context.Context) ([]identity.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(email, ''), COALESCE(full_name, ''), role, is_active, created_at
		FROM profiles
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

func (s *Profiles) FindByEmail(ctx context.Context, email string) ([]identity.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(email, ''), COALESCE(full_name, ''), role, is_active, created_at
		FROM profiles
		WHERE LOWER(TRIM(email)) = $1
		ORDER BY created_at, id
	`, identity.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("query profiles by email: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

func (s *Profiles) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Profiles) DeleteByEmail(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE LOWER(TRIM(email)) = $1`,
		identity.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("delete profiles for %q: %w", email, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Profiles) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET email = $2 WHERE id = $1`, id, email)
	if err != nil {
		return fmt.Errorf("update profile %s email: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanProfiles(rows *sql.Rows) ([]identity.Profile, error) {
	var out []identity.Profile
	for rows.Next() {
		var rec identity.Profile
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.FullName, &rec.Role, &rec.IsActive, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}
