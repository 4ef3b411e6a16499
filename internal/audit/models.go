// Package audit provides the append-only log of every mutating action steward
// takes. Entries are written for operator display and never updated or deleted.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionRepair      Action = "inconsistency_repaired"
	ActionRepairBatch Action = "inconsistency_batch_repaired"
	ActionPurge       Action = "account_purged"
	ActionMerge       Action = "duplicates_merged"
	ActionMergeBatch  Action = "duplicates_batch_merged"
	ActionWipe        Action = "bulk_delete"
)

// Entry is emitted from domain logic to capture a mutating action. Keep it
// transport-agnostic so stores and sinks can fan out.
type Entry struct {
	ID          uuid.UUID
	Action      Action
	TableName   string
	RecordCount int64
	Details     map[string]any
	Actor       string
	RequestID   string
	CreatedAt   time.Time
}

// Store persists entries. Append-only: there is deliberately no update or
// delete on this interface.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
