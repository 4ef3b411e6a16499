// Package recon detects and repairs divergence between the identity store and
// the profile store, and hosts the emergency purge path for when normal repair
// cannot converge.
package recon

import (
	"fmt"

	"github.com/google/uuid"
)

type Kind string

const (
	KindOrphanedIdentity Kind = "ORPHANED_IDENTITY"
	KindOrphanedProfile  Kind = "ORPHANED_PROFILE"
	KindIDCollision      Kind = "ID_COLLISION"
	KindEmailMismatch    Kind = "EMAIL_MISMATCH"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// kindSeverities is the single source of truth for how urgent each kind is.
// Every Kind must have an entry; TestSeverityTableCoversEveryKind enforces it.
var kindSeverities = map[Kind]Severity{
	KindOrphanedIdentity: SeverityHigh,
	KindOrphanedProfile:  SeverityMedium,
	KindIDCollision:      SeverityCritical,
	KindEmailMismatch:    SeverityHigh,
}

// Severity returns the fixed severity for this kind.
func (k Kind) Severity() Severity {
	return kindSeverities[k]
}

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// Inconsistency is a closed sum over Kind. Each variant carries only the
// fields its repair needs, so a repair never has to guess which optional
// field is populated. Inconsistencies are ephemeral: produced fresh by every
// Scan, never persisted, never reused across scans.
type Inconsistency interface {
	Kind() Kind
	Severity() Severity
	// Email is the address the finding is keyed on, already normalized.
	Email() string
	// Describe renders the operator-facing summary, naming the exact records.
	Describe() string
}

// OrphanedIdentity: an identity with no profile sharing its id and no profile
// claiming its email. Repaired by deleting the identity.
type OrphanedIdentity struct {
	IdentityID uuid.UUID
	Addr       string
}

func (o OrphanedIdentity) Kind() Kind         { return KindOrphanedIdentity }
func (o OrphanedIdentity) Severity() Severity { return KindOrphanedIdentity.Severity() }
func (o OrphanedIdentity) Email() string      { return o.Addr }
func (o OrphanedIdentity) Describe() string {
	return fmt.Sprintf("identity %s (%s) has no profile", o.IdentityID, o.Addr)
}

// OrphanedProfile: a profile with no identity sharing its id and no identity
// claiming its email. Repaired by deleting the profile by email.
type OrphanedProfile struct {
	ProfileID uuid.UUID
	Addr      string
}

func (o OrphanedProfile) Kind() Kind         { return KindOrphanedProfile }
func (o OrphanedProfile) Severity() Severity { return KindOrphanedProfile.Severity() }
func (o OrphanedProfile) Email() string      { return o.Addr }
func (o OrphanedProfile) Describe() string {
	return fmt.Sprintf("profile %s (%s) has no identity", o.ProfileID, o.Addr)
}

// IDCollision: the same email is claimed by an identity and a profile with
// different ids, so id-based repair cannot disambiguate. Repaired by deleting
// every record on both sides matching the email.
type IDCollision struct {
	Addr        string
	IdentityIDs []uuid.UUID
	ProfileIDs  []uuid.UUID
}

func (c IDCollision) Kind() Kind         { return KindIDCollision }
func (c IDCollision) Severity() Severity { return KindIDCollision.Severity() }
func (c IDCollision) Email() string      { return c.Addr }
func (c IDCollision) Describe() string {
	return fmt.Sprintf("email %s claimed by identities %v and profiles %v with mismatched ids",
		c.Addr, c.IdentityIDs, c.ProfileIDs)
}

// EmailMismatch: identity and profile share an id but disagree on email.
// Repaired by overwriting the profile email with the identity email; the
// identity store is the source of truth for addresses.
type EmailMismatch struct {
	RecordID      uuid.UUID
	IdentityEmail string
	ProfileEmail  string
}

func (m EmailMismatch) Kind() Kind         { return KindEmailMismatch }
func (m EmailMismatch) Severity() Severity { return KindEmailMismatch.Severity() }
func (m EmailMismatch) Email() string      { return m.IdentityEmail }
func (m EmailMismatch) Describe() string {
	return fmt.Sprintf("record %s email differs: identity %q vs profile %q",
		m.RecordID, m.IdentityEmail, m.ProfileEmail)
}

// RepairFailure names one item a batch could not fix.
type RepairFailure struct {
	Kind  Kind
	Email string
	Cause string
}

// Tally summarizes a repair batch.
type Tally struct {
	Attempted int
	Repaired  int
	Failed    int
	Failures  []RepairFailure
}

// PurgeReport records what an emergency purge removed.
type PurgeReport struct {
	Email             string
	IdentitiesDeleted int
	ProfilesDeleted   int
}
