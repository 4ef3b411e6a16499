// Package entity holds the restaurant record — the unit of deduplication and
// merge — and the fixed list of tables that reference it.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Restaurant is a business-entity record, created by import jobs or manual
// entry. Import jobs can insert the same restaurant more than once; the
// dedupe service consolidates the resulting duplicates.
type Restaurant struct {
	ID            uuid.UUID
	Name          string
	Township      string
	Phone         string
	Address       string
	ContactPerson string
	Remarks       string
	CreatedAt     time.Time
}

// DependentTable names a table holding rows owned by a restaurant through a
// foreign key.
type DependentTable struct {
	Name string
	FK   string
}

// DependentTables is the one place the restaurant-FK set lives. Merge walks it
// in this exact order so a partial failure always leaves dependents pointing at
// either their original owner or the keeper, never dangling. Adding a new
// dependent table is a one-line change here.
var DependentTables = []DependentTable{
	{Name: "orders", FK: "restaurant_id"},
	{Name: "leads", FK: "restaurant_id"},
	{Name: "visit_tasks", FK: "restaurant_id"},
	{Name: "notes", FK: "restaurant_id"},
	{Name: "voice_notes", FK: "restaurant_id"},
	{Name: "call_logs", FK: "restaurant_id"},
}

// ChildTable names a table owned by a dependent row rather than by a
// restaurant directly. Children carry no restaurant FK, so Reassign never
// touches them and on merge they follow their reassigned parent. Snapshot and
// bulk delete must still cover them.
type ChildTable struct {
	Name   string
	FK     string
	Parent string
}

var ChildTables = []ChildTable{
	{Name: "order_items", FK: "order_id", Parent: "orders"},
	{Name: "meetings", FK: "lead_id", Parent: "leads"},
}

// WipeTables returns every table the bulk delete clears, children before their
// parents so the deletes never trip a foreign key. The restaurant table itself
// goes last and is not in the list.
func WipeTables() []string {
	out := make([]string, 0, len(ChildTables)+len(DependentTables))
	for _, t := range ChildTables {
		out = append(out, t.Name)
	}
	for _, t := range DependentTables {
		out = append(out, t.Name)
	}
	return out
}

// IsDependentTable reports whether name carries a restaurant FK. Stores use it
// as the allowlist for Reassign and CountDependents.
func IsDependentTable(name string) bool {
	for _, t := range DependentTables {
		if t.Name == name {
			return true
		}
	}
	return false
}

// IsWipeTable reports whether name may be snapshotted or bulk-deleted.
// Broader than IsDependentTable: child tables qualify too.
func IsWipeTable(name string) bool {
	if IsDependentTable(name) {
		return true
	}
	for _, t := range ChildTables {
		if t.Name == name {
			return true
		}
	}
	return false
}

// OwnerColumn returns the FK column linking a table's rows to their owner.
func OwnerColumn(name string) (string, bool) {
	for _, t := range DependentTables {
		if t.Name == name {
			return t.FK, true
		}
	}
	for _, t := range ChildTables {
		if t.Name == name {
			return t.FK, true
		}
	}
	return "", false
}
