// Package dedupe detects duplicate restaurant records and merges them,
// re-pointing every dependent row from the removed duplicates to a single
// surviving keeper.
package dedupe

import (
	"strings"

	"github.com/google/uuid"

	"steward/internal/entity"
)

type GroupType string

const (
	TypeExact   GroupType = "exact"
	TypeSimilar GroupType = "similar"
)

// Group is a closed sum over GroupType. Only exact groups are ever
// auto-removable; similar groups plausibly represent distinct branches of a
// chain and are surfaced for human review only.
type Group interface {
	Type() GroupType
	Label() string
	Members() []entity.Restaurant
	AutoRemovable() bool
}

// ExactGroup members share the same normalized (name, township, phone) triple
// with a non-empty phone. The keeper is chosen deterministically at detection
// time so the operator sees exactly what a merge would keep.
type ExactGroup struct {
	Key         string
	Restaurants []entity.Restaurant
	Keeper      uuid.UUID
	Reason      string
}

func (g ExactGroup) Type() GroupType              { return TypeExact }
func (g ExactGroup) Label() string                { return g.Key }
func (g ExactGroup) Members() []entity.Restaurant { return g.Restaurants }
func (g ExactGroup) AutoRemovable() bool          { return true }

// RemoveIDs returns every member except the keeper.
func (g ExactGroup) RemoveIDs() []uuid.UUID {
	var out []uuid.UUID
	for _, rec := range g.Restaurants {
		if rec.ID != g.Keeper {
			out = append(out, rec.ID)
		}
	}
	return out
}

// SimilarGroup members share normalized (name, township) but differ on phone.
type SimilarGroup struct {
	Key         string
	Restaurants []entity.Restaurant
	Reason      string
}

func (g SimilarGroup) Type() GroupType              { return TypeSimilar }
func (g SimilarGroup) Label() string                { return g.Key }
func (g SimilarGroup) Members() []entity.Restaurant { return g.Restaurants }
func (g SimilarGroup) AutoRemovable() bool          { return false }

// MergeReport records one merge's effect.
type MergeReport struct {
	KeepID     uuid.UUID
	RemovedIDs []uuid.UUID
	// Reassigned maps dependent table name to rows re-pointed at the keeper.
	Reassigned map[string]int64
}

// BatchFailure names one group a batch merge could not consolidate.
type BatchFailure struct {
	Label string
	Cause string
}

// BatchReport summarizes MergeAllExact.
type BatchReport struct {
	Groups   int
	Merged   int
	Failed   int
	Reports  []MergeReport
	Failures []BatchFailure
}

// ProgressFunc receives (percentComplete, currentGroupLabel) after each group.
type ProgressFunc func(percent int, label string)

// normalizeText lowercases, trims, and collapses inner whitespace so that
// cosmetic differences between import batches do not defeat matching.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// normalizePhone keeps digits only; separators and country-code punctuation
// vary by import source.
func normalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
