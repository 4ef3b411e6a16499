package recon

import (
	"context"
	"time"

	"github.com/google/uuid"

	"steward/internal/audit"
	"steward/internal/identity"
	dErrors "steward/pkg/domain-errors"
)

// Purge unconditionally removes every trace of an email from both stores. It
// is the escape hatch for states normal repair cannot converge on, so it
// over-deletes on purpose: profiles go by every collected id AND again by
// email, in case a prior ID_COLLISION left a record no single id expresses.
//
// Purge never reports success while residue remains: after a settle delay it
// re-reads both stores and fails with a verification error carrying residual
// counts if anything matching the email survives.
func (s *Service) Purge(ctx context.Context, email string) (PurgeReport, error) {
	ctx, span := s.tracer.Start(ctx, "recon.Purge")
	defer span.End()

	norm := identity.NormalizeEmail(email)
	if norm == "" {
		return PurgeReport{}, dErrors.New(dErrors.CodePrecondition, "purge requires a non-empty email")
	}
	report := PurgeReport{Email: norm}

	ids, err := s.identities.FindByEmail(ctx, norm)
	if err != nil {
		return report, dErrors.Wrapf(err, dErrors.CodeReadFailure, "collect identities for %s", norm)
	}
	profiles, err := s.profiles.FindByEmail(ctx, norm)
	if err != nil {
		return report, dErrors.Wrapf(err, dErrors.CodeReadFailure, "collect profiles for %s", norm)
	}

	// Union of ids across both stores; a profile may exist under an identity's
	// id without carrying the email itself.
	targets := make(map[uuid.UUID]bool)
	for _, rec := range ids {
		targets[rec.ID] = true
	}
	for _, rec := range profiles {
		targets[rec.ID] = true
	}

	for id := range targets {
		if err := ignoreNotFound(s.profiles.DeleteByID(ctx, id)); err != nil {
			s.failPurgeMetric()
			return report, dErrors.Wrapf(err, dErrors.CodeWriteFailure, "purge profile %s (%s)", id, norm)
		}
	}
	if err := ignoreNotFound(s.profiles.DeleteByEmail(ctx, norm)); err != nil {
		s.failPurgeMetric()
		return report, dErrors.Wrapf(err, dErrors.CodeWriteFailure, "purge profiles by email %s", norm)
	}
	for _, rec := range ids {
		if err := ignoreNotFound(s.identities.DeleteByID(ctx, rec.ID)); err != nil {
			s.failPurgeMetric()
			return report, dErrors.Wrapf(err, dErrors.CodeWriteFailure, "purge identity %s (%s)", rec.ID, norm)
		}
	}
	report.IdentitiesDeleted = len(ids)
	report.ProfilesDeleted = len(profiles)

	if err := s.verifyPurged(ctx, norm); err != nil {
		s.failPurgeMetric()
		return report, err
	}

	if s.metrics != nil {
		s.metrics.PurgesTotal.WithLabelValues("ok").Inc()
	}
	s.recordAudit(ctx, audit.Entry{
		Action:      audit.ActionPurge,
		RecordCount: int64(report.IdentitiesDeleted + report.ProfilesDeleted),
		Details: map[string]any{
			"email":              norm,
			"identities_deleted": report.IdentitiesDeleted,
			"profiles_deleted":   report.ProfilesDeleted,
		},
	})
	s.logger.InfoContext(ctx, "purge complete",
		"email", norm,
		"identities_deleted", report.IdentitiesDeleted,
		"profiles_deleted", report.ProfilesDeleted,
	)
	return report, nil
}

// verifyPurged re-reads both stores after the settle delay, retrying a bounded
// number of times for eventual consistency before failing loudly.
func (s *Service) verifyPurged(ctx context.Context, email string) error {
	var residualIdentities, residualProfiles int
	for attempt := 1; attempt <= s.purgeVerifyAttempts; attempt++ {
		if s.purgeSettle > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.purgeSettle):
			}
		}

		ids, err := s.identities.FindByEmail(ctx, email)
		if err != nil {
			return dErrors.Wrapf(err, dErrors.CodeReadFailure, "verify identities for %s", email)
		}
		profiles, err := s.profiles.FindByEmail(ctx, email)
		if err != nil {
			return dErrors.Wrapf(err, dErrors.CodeReadFailure, "verify profiles for %s", email)
		}

		residualIdentities, residualProfiles = len(ids), len(profiles)
		if residualIdentities == 0 && residualProfiles == 0 {
			return nil
		}
		s.logger.WarnContext(ctx, "purge residue still present",
			"email", email,
			"attempt", attempt,
			"residual_identities", residualIdentities,
			"residual_profiles", residualProfiles,
		)
	}
	return dErrors.Newf(dErrors.CodeVerification,
		"cleanup verification failed for %s: %d identities and %d profiles remain",
		email, residualIdentities, residualProfiles)
}

func (s *Service) failPurgeMetric() {
	if s.metrics != nil {
		s.metrics.PurgesTotal.WithLabelValues("error").Inc()
	}
}
