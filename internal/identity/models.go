// Package identity holds the records the cross-store reconciler works over:
// identities from the external authentication store and profiles from the
// application store, linked by a shared id.
package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is an account in the external authentication store. Steward only
// reads and deletes identities; credential fields never cross this boundary.
type Identity struct {
	ID        uuid.UUID
	Email     string
	CreatedAt time.Time
}

// Profile is the application's business-visible user record. Its ID is
// expected to equal the identity record's ID for the same person.
type Profile struct {
	ID        uuid.UUID
	Email     string
	FullName  string
	Role      string
	IsActive  bool
	CreatedAt time.Time
}

// NormalizeEmail is the single place email comparison semantics live. Every
// match, lookup, and delete-by-email in the reconciler must agree on this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
