// Package store provides persistence for restaurants and their dependents.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"steward/internal/backup"
	"steward/internal/entity"
)

// Postgres persists restaurants and operates on their dependent tables.
// Dependent table names are always validated against the fixed list before
// being interpolated; they never come from request input.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) List(ctx context.Context) ([]entity.Restaurant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(township, ''), COALESCE(phone, ''),
		       COALESCE(address, ''), COALESCE(contact_person, ''), COALESCE(remarks, ''),
		       created_at
		FROM restaurants
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query restaurants: %w", err)
	}
	defer rows.Close()

	var out []entity.Restaurant
	for rows.Next() {
		var rec entity.Restaurant
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Township, &rec.Phone,
			&rec.Address, &rec.ContactPerson, &rec.Remarks, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restaurants: %w", err)
	}
	return out, nil
}

// Delete removes the given restaurants. Missing ids are not an error: merge
// retries must be safe after a partial failure.
func (s *Postgres) Delete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM restaurants WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete restaurants %v: %w", ids, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Reassign re-points dependent rows from oldID to newID and returns the number
// of rows moved. Zero rows is a no-op success, which is what makes a merge
// retry safe.
func (s *Postgres) Reassign(ctx context.Context, table string, oldID, newID uuid.UUID) (int64, error) {
	fk, err := dependentFK(table)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`, table, fk, fk),
		newID, oldID)
	if err != nil {
		return 0, fmt.Errorf("reassign %s from %s to %s: %w", table, oldID, newID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountDependents returns the number of rows a restaurant owns in one table.
func (s *Postgres) CountDependents(ctx context.Context, table string, ownerID uuid.UUID) (int64, error) {
	fk, err := dependentFK(table)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, table, fk),
		ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s for %s: %w", table, ownerID, err)
	}
	return n, nil
}

// DeleteDependents wipes one dependent or child table entirely. Callers clear
// child tables before their parents so the deletes never trip a foreign key.
func (s *Postgres) DeleteDependents(ctx context.Context, table string) (int64, error) {
	if !entity.IsWipeTable(table) {
		return 0, fmt.Errorf("%q is not a dependent table", table)
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table))
	if err != nil {
		return 0, fmt.Errorf("delete all %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteAll wipes the restaurant table itself.
func (s *Postgres) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM restaurants`)
	if err != nil {
		return 0, fmt.Errorf("delete all restaurants: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Snapshot reads every restaurant row and every dependent and child row into a
// backup payload. Generic column scanning keeps the snapshot complete even
// when a table grows columns steward does not model.
func (s *Postgres) Snapshot(ctx context.Context) (backup.Snapshot, error) {
	snap := backup.NewSnapshot()

	tables := append([]string{"restaurants"}, entity.WipeTables()...)
	for _, table := range tables {
		rows, err := s.snapshotTable(ctx, table)
		if err != nil {
			return backup.Snapshot{}, err
		}
		snap.Tables[table] = rows
		snap.Counts[table] = int64(len(rows))
	}
	return snap, nil
}

func (s *Postgres) snapshotTable(ctx context.Context, table string) ([]map[string]any, error) {
	if table != "restaurants" && !entity.IsWipeTable(table) {
		return nil, fmt.Errorf("%q is not a dependent table", table)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s columns: %w", table, err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("snapshot %s scan: %w", table, err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot %s iterate: %w", table, err)
	}
	return out, nil
}

func dependentFK(table string) (string, error) {
	for _, t := range entity.DependentTables {
		if t.Name == table {
			return t.FK, nil
		}
	}
	return "", fmt.Errorf("%q is not a dependent table", table)
}
