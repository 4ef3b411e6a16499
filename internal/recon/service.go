package recon

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"steward/internal/audit"
	"steward/internal/identity"
	"steward/internal/platform/metrics"
	dErrors "steward/pkg/domain-errors"
	"steward/pkg/sentinel"
)

// IdentityStore is the slice of the identity store the reconciler consumes.
type IdentityStore interface {
	List(ctx context.Context) ([]identity.Identity, error)
	FindByEmail(ctx context.Context, email string) ([]identity.Identity, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

// ProfileStore is the slice of the profile store the reconciler consumes.
type ProfileStore interface {
	List(ctx context.Context) ([]identity.Profile, error)
	FindByEmail(ctx context.Context, email string) ([]identity.Profile, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteByEmail(ctx context.Context, email string) error
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) error
}

// Auditor records mutating actions.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service is the cross-store reconciler.
type Service struct {
	identities IdentityStore
	profiles   ProfileStore
	auditor    Auditor
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	// repairSettle runs between items in RepairAll to respect the backing
	// stores' eventual-consistency window.
	repairSettle time.Duration
	// purgeSettle runs before each post-purge verification read.
	purgeSettle time.Duration
	// purgeVerifyAttempts bounds verification retries before failing loudly.
	purgeVerifyAttempts int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithRepairSettle(d time.Duration) Option {
	return func(s *Service) { s.repairSettle = d }
}

func WithPurgeSettle(d time.Duration) Option {
	return func(s *Service) { s.purgeSettle = d }
}

// New constructs the reconciler over the two stores.
func New(identities IdentityStore, profiles ProfileStore, opts ...Option) *Service {
	s := &Service{
		identities:          identities,
		profiles:            profiles,
		logger:              slog.Default(),
		tracer:              otel.Tracer("steward/recon"),
		repairSettle:        300 * time.Millisecond,
		purgeSettle:         3 * time.Second,
		purgeVerifyAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan loads both stores to completion and classifies every divergence. It is
// read-only and idempotent. Either listing failing aborts the whole scan: a
// partial pair of stores is worse than no answer.
func (s *Service) Scan(ctx context.Context) ([]Inconsistency, error) {
	ctx, span := s.tracer.Start(ctx, "recon.Scan")
	defer span.End()
	start := time.Now()

	var (
		ids      []identity.Identity
		profiles []identity.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ids, err = s.identities.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		profiles, err = s.profiles.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeReadFailure, "scan aborted: listing a store failed")
	}

	items := classify(ids, profiles)

	if s.metrics != nil {
		s.metrics.ScansTotal.Inc()
		s.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		for _, item := range items {
			s.metrics.InconsistenciesFound.WithLabelValues(string(item.Kind())).Inc()
		}
	}
	s.logger.InfoContext(ctx, "scan complete",
		"identities", len(ids),
		"profiles", len(profiles),
		"inconsistencies", len(items),
	)
	return items, nil
}

// classify is the pure core of Scan, split out so tests can drive it directly.
func classify(ids []identity.Identity, profiles []identity.Profile) []Inconsistency {
	idsByID := make(map[uuid.UUID]identity.Identity, len(ids))
	idsByEmail := make(map[string][]identity.Identity)
	for _, rec := range ids {
		idsByID[rec.ID] = rec
		if email := identity.NormalizeEmail(rec.Email); email != "" {
			idsByEmail[email] = append(idsByEmail[email], rec)
		}
	}
	profilesByID := make(map[uuid.UUID]identity.Profile, len(profiles))
	profilesByEmail := make(map[string][]identity.Profile)
	for _, rec := range profiles {
		profilesByID[rec.ID] = rec
		if email := identity.NormalizeEmail(rec.Email); email != "" {
			profilesByEmail[email] = append(profilesByEmail[email], rec)
		}
	}

	var items []Inconsistency
	// One ID_COLLISION per email: both passes can discover the same collision,
	// so findings are deduped by (kind, email).
	collisions := make(map[string]bool)

	for _, rec := range ids {
		email := identity.NormalizeEmail(rec.Email)
		if email == "" {
			continue
		}
		if _, ok := profilesByID[rec.ID]; ok {
			continue
		}
		if others := profilesWithDifferentID(profilesByEmail[email], rec.ID); len(others) > 0 {
			if !collisions[email] {
				collisions[email] = true
				items = append(items, collisionFor(email, idsByEmail[email], profilesByEmail[email]))
			}
			continue
		}
		items = append(items, OrphanedIdentity{IdentityID: rec.ID, Addr: email})
	}

	for _, rec := range profiles {
		if _, ok := idsByID[rec.ID]; ok {
			continue
		}
		email := identity.NormalizeEmail(rec.Email)
		if email != "" {
			if others := identitiesWithDifferentID(idsByEmail[email], rec.ID); len(others) > 0 {
				if !collisions[email] {
					collisions[email] = true
					items = append(items, collisionFor(email, idsByEmail[email], profilesByEmail[email]))
				}
				continue
			}
		}
		items = append(items, OrphanedProfile{ProfileID: rec.ID, Addr: email})
	}

	for _, rec := range ids {
		profile, ok := profilesByID[rec.ID]
		if !ok {
			continue
		}
		if identity.NormalizeEmail(rec.Email) != identity.NormalizeEmail(profile.Email) {
			items = append(items, EmailMismatch{
				RecordID:      rec.ID,
				IdentityEmail: rec.Email,
				ProfileEmail:  profile.Email,
			})
		}
	}

	sortBySeverity(items)
	return items
}

func collisionFor(email string, ids []identity.Identity, profiles []identity.Profile) IDCollision {
	c := IDCollision{Addr: email}
	for _, rec := range ids {
		c.IdentityIDs = append(c.IdentityIDs, rec.ID)
	}
	for _, rec := range profiles {
		c.ProfileIDs = append(c.ProfileIDs, rec.ID)
	}
	return c
}

func profilesWithDifferentID(profiles []identity.Profile, id uuid.UUID) []identity.Profile {
	var out []identity.Profile
	for _, rec := range profiles {
		if rec.ID != id {
			out = append(out, rec)
		}
	}
	return out
}

func identitiesWithDifferentID(ids []identity.Identity, id uuid.UUID) []identity.Identity {
	var out []identity.Identity
	for _, rec := range ids {
		if rec.ID != id {
			out = append(out, rec)
		}
	}
	return out
}

func sortBySeverity(items []Inconsistency) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := severityRank[items[i].Severity()], severityRank[items[j].Severity()]
		if ri != rj {
			return ri < rj
		}
		return items[i].Email() < items[j].Email()
	})
}

// Repair applies the fixed remediation for one inconsistency. Targets come
// from the scan item's own fields, never from a fresh re-check, so a stale
// list cannot silently repair the wrong record. A target that is already gone
// counts as success: a prior partial repair or a concurrent operator may have
// removed it.
func (s *Service) Repair(ctx context.Context, item Inconsistency) error {
	ctx, span := s.tracer.Start(ctx, "recon.Repair")
	defer span.End()

	var err error
	switch v := item.(type) {
	case OrphanedIdentity:
		err = ignoreNotFound(s.identities.DeleteByID(ctx, v.IdentityID))
		err = dErrors.Wrapf(err, dErrors.CodeWriteFailure,
			"delete orphaned identity %s (%s)", v.IdentityID, v.Addr)
	case OrphanedProfile:
		err = ignoreNotFound(s.profiles.DeleteByEmail(ctx, v.Addr))
		err = dErrors.Wrapf(err, dErrors.CodeWriteFailure,
			"delete orphaned profile %s (%s)", v.ProfileID, v.Addr)
	case IDCollision:
		// Deliberately total: the collision means id-based deletion cannot
		// tell which record is correct, so every record claiming the email
		// goes, on both sides.
		err = s.repairCollision(ctx, v)
	case EmailMismatch:
		err = ignoreNotFound(s.profiles.UpdateEmail(ctx, v.RecordID, v.IdentityEmail))
		err = dErrors.Wrapf(err, dErrors.CodeWriteFailure,
			"overwrite profile %s email with %q", v.RecordID, v.IdentityEmail)
	default:
		err = dErrors.Newf(dErrors.CodeValidation, "unknown inconsistency kind %q", item.Kind())
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	if s.metrics != nil {
		s.metrics.RepairsTotal.WithLabelValues(string(item.Kind()), result).Inc()
	}
	if err != nil {
		return err
	}

	s.recordAudit(ctx, audit.Entry{
		Action: audit.ActionRepair,
		Details: map[string]any{
			"kind":    string(item.Kind()),
			"email":   item.Email(),
			"summary": item.Describe(),
		},
	})
	return nil
}

func (s *Service) repairCollision(ctx context.Context, v IDCollision) error {
	if err := ignoreNotFound(s.profiles.DeleteByEmail(ctx, v.Addr)); err != nil {
		return dErrors.Wrapf(err, dErrors.CodeWriteFailure,
			"delete colliding profiles for %s", v.Addr)
	}
	ids, err := s.identities.FindByEmail(ctx, v.Addr)
	if err != nil {
		return dErrors.Wrapf(err, dErrors.CodeReadFailure,
			"find colliding identities for %s", v.Addr)
	}
	for _, rec := range ids {
		if err := ignoreNotFound(s.identities.DeleteByID(ctx, rec.ID)); err != nil {
			return dErrors.Wrapf(err, dErrors.CodeWriteFailure,
				"delete colliding identity %s (%s)", rec.ID, v.Addr)
		}
	}
	return nil
}

// RepairAll repairs a batch most-severe first, sequentially, continuing past
// individual failures. Only a batch where every item failed is an overall
// error. The settle delay between items respects the stores'
// eventual-consistency window; it is not a rate limit.
func (s *Service) RepairAll(ctx context.Context, items []Inconsistency) (Tally, error) {
	ctx, span := s.tracer.Start(ctx, "recon.RepairAll")
	defer span.End()

	ordered := append([]Inconsistency{}, items...)
	sortBySeverity(ordered)

	tally := Tally{Attempted: len(ordered)}
	for i, item := range ordered {
		if err := s.Repair(ctx, item); err != nil {
			tally.Failed++
			tally.Failures = append(tally.Failures, RepairFailure{
				Kind:  item.Kind(),
				Email: item.Email(),
				Cause: err.Error(),
			})
			s.logger.WarnContext(ctx, "repair failed",
				"kind", item.Kind(),
				"email", item.Email(),
				"error", err,
			)
		} else {
			tally.Repaired++
		}

		if i < len(ordered)-1 && s.repairSettle > 0 {
			select {
			case <-ctx.Done():
				return tally, ctx.Err()
			case <-time.After(s.repairSettle):
			}
		}
	}

	s.recordAudit(ctx, audit.Entry{
		Action:      audit.ActionRepairBatch,
		RecordCount: int64(tally.Repaired),
		Details: map[string]any{
			"attempted": tally.Attempted,
			"repaired":  tally.Repaired,
			"failed":    tally.Failed,
		},
	})

	if tally.Attempted > 0 && tally.Failed == tally.Attempted {
		return tally, dErrors.Newf(dErrors.CodeWriteFailure,
			"all %d repairs failed", tally.Attempted)
	}
	return tally, nil
}

func (s *Service) recordAudit(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", "action", entry.Action, "error", err)
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	return err
}
