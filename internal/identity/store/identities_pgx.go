// Package store provides persistence for identity and profile records. The
// identity store lives in the auth system's own database and is reached over
// its own pool; the profile store lives in the application database.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"steward/internal/identity"
	"steward/pkg/sentinel"
)

// Identities reads and deletes accounts in the authentication database.
// Inserts and credential updates are deliberately absent: the auth system owns
// those, this store exists for reconciliation and purge only.
type Identities struct {
	pool *pgxpool.Pool
}

func NewIdentities(pool *pgxpool.Pool) *Identities {
	return &Identities{pool: pool}
}

func (s *Identities) List(ctx context.Context) ([]identity.Identity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(email, ''), created_at
		FROM accounts
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []identity.Identity
	for rows.Next() {
		var rec identity.Identity
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (s *Identities) FindByEmail(ctx context.Context, email string) ([]identity.Identity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(email, ''), created_at
		FROM accounts
		WHERE LOWER(TRIM(email)) = $1
		ORDER BY created_at, id
	`, identity.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("query accounts by email: %w", err)
	}
	defer rows.Close()

	var out []identity.Identity
	for rows.Next() {
		var rec identity.Identity
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (s *Identities) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
