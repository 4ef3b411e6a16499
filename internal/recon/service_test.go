package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"steward/internal/audit"
	auditstore "steward/internal/audit/store"
	"steward/internal/identity"
	idstore "steward/internal/identity/store"
	dErrors "steward/pkg/domain-errors"
)

type ReconSuite struct {
	suite.Suite
	ctx        context.Context
	identities *idstore.MemoryIdentities
	profiles   *idstore.MemoryProfiles
	auditLog   *auditstore.Memory
	svc        *Service
}

func TestReconSuite(t *testing.T) {
	suite.Run(t, new(ReconSuite))
}

func (s *ReconSuite) SetupTest() {
	s.ctx = context.Background()
	s.identities = idstore.NewMemoryIdentities()
	s.profiles = idstore.NewMemoryProfiles()
	s.auditLog = auditstore.NewMemory()
	s.svc = New(s.identities, s.profiles,
		WithAuditor(audit.NewService(s.auditLog)),
		WithRepairSettle(0),
		WithPurgeSettle(0),
	)
}

func (s *ReconSuite) addPair(email string) uuid.UUID {
	id := uuid.New()
	s.identities.Put(identity.Identity{ID: id, Email: email, CreatedAt: time.Now()})
	s.profiles.Put(identity.Profile{ID: id, Email: email, CreatedAt: time.Now()})
	return id
}

func (s *ReconSuite) TestScanCleanStores() {
	s.addPair("alice@example.com")
	s.addPair("bob@example.com")

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *ReconSuite) TestScanIsIdempotent() {
	s.addPair("alice@example.com")
	s.identities.Put(identity.Identity{ID: uuid.New(), Email: "ghost@example.com"})

	first, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	second, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *ReconSuite) TestScanNormalizesEmails() {
	// Same address modulo case and whitespace is not a mismatch.
	id := uuid.New()
	s.identities.Put(identity.Identity{ID: id, Email: "  Alice@Example.COM "})
	s.profiles.Put(identity.Profile{ID: id, Email: "alice@example.com"})

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *ReconSuite) TestScanDetectsOrphanedIdentity() {
	orphanID := uuid.New()
	s.identities.Put(identity.Identity{ID: orphanID, Email: "ghost@example.com"})
	s.addPair("alice@example.com")

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(items, 1)

	v, ok := items[0].(OrphanedIdentity)
	s.Require().True(ok, "expected OrphanedIdentity, got %T", items[0])
	s.Equal(orphanID, v.IdentityID)
	s.Equal("ghost@example.com", v.Email())
	s.Equal(SeverityHigh, v.Severity())
}

func (s *ReconSuite) TestScanDetectsOrphanedProfile() {
	orphanID := uuid.New()
	s.profiles.Put(identity.Profile{ID: orphanID, Email: "ghost@example.com"})

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(items, 1)

	v, ok := items[0].(OrphanedProfile)
	s.Require().True(ok, "expected OrphanedProfile, got %T", items[0])
	s.Equal(orphanID, v.ProfileID)
	s.Equal(SeverityMedium, v.Severity())
}

func (s *ReconSuite) TestScanDetectsEmailMismatch() {
	id := uuid.New()
	s.identities.Put(identity.Identity{ID: id, Email: "new@example.com"})
	s.profiles.Put(identity.Profile{ID: id, Email: "old@example.com"})

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(items, 1)

	v, ok := items[0].(EmailMismatch)
	s.Require().True(ok, "expected EmailMismatch, got %T", items[0])
	s.Equal(id, v.RecordID)
	s.Equal("new@example.com", v.IdentityEmail)
	s.Equal("old@example.com", v.ProfileEmail)
}

func (s *ReconSuite) TestScanReportsOneCollisionPerEmail() {
	// Both passes can discover the same collision; it must surface once.
	s.identities.Put(identity.Identity{ID: uuid.New(), Email: "shared@example.com"})
	s.identities.Put(identity.Identity{ID: uuid.New(), Email: "shared@example.com"})
	s.profiles.Put(identity.Profile{ID: uuid.New(), Email: "shared@example.com"})
	s.profiles.Put(identity.Profile{ID: uuid.New(), Email: "shared@example.com"})

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(items, 1)

	v, ok := items[0].(IDCollision)
	s.Require().True(ok, "expected IDCollision, got %T", items[0])
	s.Equal("shared@example.com", v.Email())
	s.Len(v.IdentityIDs, 2)
	s.Len(v.ProfileIDs, 2)
	s.Equal(SeverityCritical, v.Severity())
}

func (s *ReconSuite) TestScanOrdersMostSevereFirst() {
	s.identities.Put(identity.Identity{ID: uuid.New(), Email: "orphan@example.com"})
	s.profiles.Put(identity.Profile{ID: uuid.New(), Email: "stray@example.com"})
	s.identities.Put(identity.Identity{ID: uuid.New(), Email: "clash@example.com"})
	s.profiles.Put(identity.Profile{ID: uuid.New(), Email: "clash@example.com"})

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(items, 3)
	s.Equal(KindIDCollision, items[0].Kind())
	s.Equal(KindOrphanedIdentity, items[1].Kind())
	s.Equal(KindOrphanedProfile, items[2].Kind())
}

func (s *ReconSuite) TestRepairOrphanedIdentity() {
	orphanID := uuid.New()
	s.identities.Put(identity.Identity{ID: orphanID, Email: "ghost@example.com"})

	err := s.svc.Repair(s.ctx, OrphanedIdentity{IdentityID: orphanID, Addr: "ghost@example.com"})
	s.Require().NoError(err)

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *ReconSuite) TestRepairOrphanedProfile() {
	orphanID := uuid.New()
	s.profiles.Put(identity.Profile{ID: orphanID, Email: "ghost@example.com"})

	err := s.svc.Repair(s.ctx, OrphanedProfile{ProfileID: orphanID, Addr: "ghost@example.com"})
	s.Require().NoError(err)

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *ReconSuite) TestRepairEmailMismatchWritesIdentityEmail() {
	id := uuid.New()
	s.identities.Put(identity.Identity{ID: id, Email: "new@example.com"})
	s.profiles.Put(identity.Profile{ID: id, Email: "old@example.com"})

	err := s.svc.Repair(s.ctx, EmailMismatch{
		RecordID:      id,
		IdentityEmail: "new@example.com",
		ProfileEmail:  "old@example.com",
	})
	s.Require().NoError(err)

	got, err := s.profiles.FindByEmail(s.ctx, "new@example.com")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(id, got[0].ID)

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *ReconSuite) TestRepairCollisionRemovesEverySideOfTheEmail() {
	s.identities.Put(identity.Identity{ID: uuid.New(), Email: "clash@example.com"})
	s.identities.Put(identity.Identity{ID: uuid.New(), Email: "clash@example.com"})
	s.profiles.Put(identity.Profile{ID: uuid.New(), Email: "clash@example.com"})
	s.addPair("bystander@example.com")

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(items, 1)

	s.Require().NoError(s.svc.Repair(s.ctx, items[0]))

	ids, err := s.identities.FindByEmail(s.ctx, "clash@example.com")
	s.Require().NoError(err)
	s.Empty(ids)
	profs, err := s.profiles.FindByEmail(s.ctx, "clash@example.com")
	s.Require().NoError(err)
	s.Empty(profs)

	// The untouched pair survives.
	bystanders, err := s.profiles.FindByEmail(s.ctx, "bystander@example.com")
	s.Require().NoError(err)
	s.Len(bystanders, 1)
}

func (s *ReconSuite) TestRepairToleratesAlreadyGoneTargets() {
	orphanID := uuid.New()
	s.identities.Put(identity.Identity{ID: orphanID, Email: "ghost@example.com"})

	item := OrphanedIdentity{IdentityID: orphanID, Addr: "ghost@example.com"}
	s.Require().NoError(s.svc.Repair(s.ctx, item))
	// A second repair of the same item finds nothing to delete and succeeds.
	s.Require().NoError(s.svc.Repair(s.ctx, item))
}

func (s *ReconSuite) TestRepairRecordsAuditEntry() {
	orphanID := uuid.New()
	s.identities.Put(identity.Identity{ID: orphanID, Email: "ghost@example.com"})

	s.Require().NoError(s.svc.Repair(s.ctx, OrphanedIdentity{IdentityID: orphanID, Addr: "ghost@example.com"}))

	entries := s.auditLog.All()
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionRepair, entries[0].Action)
	s.Equal("ghost@example.com", entries[0].Details["email"])
	s.NotEqual(uuid.Nil, entries[0].ID)
}

// flakyProfiles fails email updates so batch tests can mix outcomes.
type flakyProfiles struct {
	*idstore.MemoryProfiles
	updateErr error
}

func (f *flakyProfiles) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.MemoryProfiles.UpdateEmail(ctx, id, email)
}

func (s *ReconSuite) TestRepairAllContinuesPastFailures() {
	profiles := &flakyProfiles{MemoryProfiles: s.profiles, updateErr: errors.New("write timeout")}
	svc := New(s.identities, profiles, WithRepairSettle(0), WithPurgeSettle(0))

	orphanID := uuid.New()
	s.identities.Put(identity.Identity{ID: orphanID, Email: "ghost@example.com"})
	pairID := s.addPair("alice@example.com")

	items := []Inconsistency{
		// Will fail: profile email updates are broken.
		EmailMismatch{RecordID: pairID, IdentityEmail: "alice@example.com", ProfileEmail: "stale@example.com"},
		// Will succeed.
		OrphanedIdentity{IdentityID: orphanID, Addr: "ghost@example.com"},
	}

	tally, err := svc.RepairAll(s.ctx, items)
	s.Require().NoError(err)
	s.Equal(2, tally.Attempted)
	s.Equal(1, tally.Repaired)
	s.Equal(1, tally.Failed)
	s.Require().Len(tally.Failures, 1)
	s.Equal(KindEmailMismatch, tally.Failures[0].Kind)
	s.Contains(tally.Failures[0].Cause, "write timeout")

	// The orphan is gone even though the mismatch repair failed.
	ids, err := s.identities.FindByEmail(s.ctx, "ghost@example.com")
	s.Require().NoError(err)
	s.Empty(ids)
}

func (s *ReconSuite) TestRepairAllFailsWhenEveryItemFails() {
	profiles := &flakyProfiles{MemoryProfiles: s.profiles, updateErr: errors.New("write timeout")}
	svc := New(s.identities, profiles, WithRepairSettle(0), WithPurgeSettle(0))

	items := []Inconsistency{
		EmailMismatch{RecordID: uuid.New(), IdentityEmail: "a@example.com", ProfileEmail: "b@example.com"},
		EmailMismatch{RecordID: uuid.New(), IdentityEmail: "c@example.com", ProfileEmail: "d@example.com"},
	}

	tally, err := svc.RepairAll(s.ctx, items)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeWriteFailure))
	s.Equal(2, tally.Failed)
	s.Zero(tally.Repaired)
}

func (s *ReconSuite) TestRepairAllOrdersMostSevereFirst() {
	s.identities.Put(identity.Identity{ID: uuid.New(), Email: "clash@example.com"})
	s.profiles.Put(identity.Profile{ID: uuid.New(), Email: "clash@example.com"})
	orphanID := uuid.New()
	s.profiles.Put(identity.Profile{ID: orphanID, Email: "stray@example.com"})

	items, err := s.svc.Scan(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(items, 2)

	// Hand the batch over in reverse severity order; RepairAll must re-sort.
	reversed := []Inconsistency{items[1], items[0]}
	tally, err := s.svc.RepairAll(s.ctx, reversed)
	s.Require().NoError(err)
	s.Equal(2, tally.Repaired)

	// The audit trail preserves attempt order, exposing the severity sort.
	var repaired []Kind
	for _, e := range s.auditLog.All() {
		if e.Action == audit.ActionRepair {
			repaired = append(repaired, Kind(e.Details["kind"].(string)))
		}
	}
	s.Require().Len(repaired, 2)
	s.Equal(KindIDCollision, repaired[0])
	s.Equal(KindOrphanedProfile, repaired[1])
}
