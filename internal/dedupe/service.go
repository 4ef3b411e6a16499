package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"steward/internal/audit"
	"steward/internal/entity"
	"steward/internal/platform/metrics"
	dErrors "steward/pkg/domain-errors"
)

// EntityStore is the slice of the entity store the resolver consumes.
type EntityStore interface {
	List(ctx context.Context) ([]entity.Restaurant, error)
	Delete(ctx context.Context, ids []uuid.UUID) (int64, error)
	Reassign(ctx context.Context, table string, oldID, newID uuid.UUID) (int64, error)
}

// Auditor records mutating actions.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service is the duplicate resolver.
type Service struct {
	entities EntityStore
	auditor  Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	// mergeSettle runs between groups in MergeAllExact.
	mergeSettle time.Duration
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

func WithMergeSettle(d time.Duration) Option {
	return func(s *Service) { s.mergeSettle = d }
}

func New(entities EntityStore, opts ...Option) *Service {
	s := &Service{
		entities:    entities,
		logger:      slog.Default(),
		tracer:      otel.Tracer("steward/dedupe"),
		mergeSettle: 300 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Detect loads all restaurants and groups duplicates. Exact groups share the
// full normalized (name, township, phone) triple with a non-empty phone and
// are safe to auto-merge. Similar groups share (name, township) but differ on
// phone; they are surfaced for review and never auto-merged. Read-only.
func (s *Service) Detect(ctx context.Context) ([]Group, error) {
	ctx, span := s.tracer.Start(ctx, "dedupe.Detect")
	defer span.End()

	restaurants, err := s.entities.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeReadFailure, "detect aborted: listing restaurants failed")
	}

	groups := group(restaurants)

	if s.metrics != nil {
		for _, g := range groups {
			s.metrics.DuplicateGroupsFound.WithLabelValues(string(g.Type())).Inc()
		}
	}
	s.logger.InfoContext(ctx, "duplicate detection complete",
		"restaurants", len(restaurants),
		"groups", len(groups),
	)
	return groups, nil
}

// group is the pure core of Detect.
func group(restaurants []entity.Restaurant) []Group {
	exactBuckets := make(map[string][]entity.Restaurant)
	nameBuckets := make(map[string][]entity.Restaurant)
	for _, rec := range restaurants {
		name := normalizeText(rec.Name)
		township := normalizeText(rec.Township)
		phone := normalizePhone(rec.Phone)
		if phone != "" {
			exactBuckets[name+"|"+township+"|"+phone] = append(exactBuckets[name+"|"+township+"|"+phone], rec)
		}
		nameBuckets[name+"|"+township] = append(nameBuckets[name+"|"+township], rec)
	}

	var groups []Group

	exactKeys := sortedKeys(exactBuckets)
	for _, key := range exactKeys {
		members := exactBuckets[key]
		if len(members) < 2 {
			continue
		}
		sortMembers(members)
		keeper := chooseKeeper(members)
		groups = append(groups, ExactGroup{
			Key:         key,
			Restaurants: members,
			Keeper:      keeper.ID,
			Reason:      fmt.Sprintf("%d records share name, township, and phone", len(members)),
		})
	}

	nameKeys := sortedKeys(nameBuckets)
	for _, key := range nameKeys {
		members := nameBuckets[key]
		if len(members) < 2 {
			continue
		}
		phones := make(map[string]bool)
		for _, rec := range members {
			phones[normalizePhone(rec.Phone)] = true
		}
		if len(phones) < 2 {
			continue
		}
		sortMembers(members)
		groups = append(groups, SimilarGroup{
			Key:         key,
			Restaurants: members,
			Reason:      fmt.Sprintf("%d records share name and township but differ on phone; possible chain branches", len(members)),
		})
	}

	return groups
}

// chooseKeeper picks the member with the most filled-in attributes among
// address, contact person, phone, and remarks; ties break to the earliest
// created record, then the lowest id.
func chooseKeeper(members []entity.Restaurant) entity.Restaurant {
	best := members[0]
	bestScore := completeness(best)
	for _, rec := range members[1:] {
		score := completeness(rec)
		switch {
		case score > bestScore:
			best, bestScore = rec, score
		case score == bestScore && rec.CreatedAt.Before(best.CreatedAt):
			best = rec
		case score == bestScore && rec.CreatedAt.Equal(best.CreatedAt) && rec.ID.String() < best.ID.String():
			best = rec
		}
	}
	return best
}

func completeness(rec entity.Restaurant) int {
	score := 0
	for _, field := range []string{rec.Address, rec.ContactPerson, rec.Phone, rec.Remarks} {
		if normalizeText(field) != "" {
			score++
		}
	}
	return score
}

// Merge re-points every dependent row owned by any removed id to keepID,
// walking the dependent tables in their fixed order, then deletes the removed
// restaurants. Each table step is idempotent, so retrying a partially failed
// merge is safe; deletion happens only after every reassignment succeeded.
func (s *Service) Merge(ctx context.Context, keepID uuid.UUID, removeIDs []uuid.UUID) (MergeReport, error) {
	ctx, span := s.tracer.Start(ctx, "dedupe.Merge")
	defer span.End()

	report := MergeReport{KeepID: keepID, Reassigned: make(map[string]int64)}

	if len(removeIDs) == 0 {
		return report, dErrors.New(dErrors.CodePrecondition, "merge requires at least one id to remove")
	}
	for _, id := range removeIDs {
		if id == keepID {
			return report, dErrors.Newf(dErrors.CodePrecondition,
				"keeper %s cannot also be removed", keepID)
		}
	}
	if err := s.ensureExists(ctx, keepID); err != nil {
		return report, err
	}

	for _, table := range entity.DependentTables {
		for _, oldID := range removeIDs {
			n, err := s.entities.Reassign(ctx, table.Name, oldID, keepID)
			if err != nil {
				s.failMergeMetric()
				return report, dErrors.Wrapf(err, dErrors.CodeWriteFailure,
					"reassign %s from %s to %s", table.Name, oldID, keepID)
			}
			report.Reassigned[table.Name] += n
			if s.metrics != nil && n > 0 {
				s.metrics.DependentsReassigned.WithLabelValues(table.Name).Add(float64(n))
			}
		}
	}

	deleted, err := s.entities.Delete(ctx, removeIDs)
	if err != nil {
		s.failMergeMetric()
		return report, dErrors.Wrapf(err, dErrors.CodeWriteFailure,
			"delete merged duplicates %v", removeIDs)
	}
	report.RemovedIDs = removeIDs

	if s.metrics != nil {
		s.metrics.MergesTotal.WithLabelValues("ok").Inc()
	}
	details := map[string]any{
		"keep_id":    keepID.String(),
		"removed":    len(removeIDs),
		"deleted":    deleted,
		"reassigned": report.Reassigned,
	}
	s.recordAudit(ctx, audit.Entry{
		Action:      audit.ActionMerge,
		TableName:   "restaurants",
		RecordCount: deleted,
		Details:     details,
	})
	s.logger.InfoContext(ctx, "merge complete",
		"keep_id", keepID,
		"removed", len(removeIDs),
	)
	return report, nil
}

// MergeAllExact consolidates every exact group sequentially, reporting
// progress after each group and isolating per-group failures.
func (s *Service) MergeAllExact(ctx context.Context, onProgress ProgressFunc) (BatchReport, error) {
	ctx, span := s.tracer.Start(ctx, "dedupe.MergeAllExact")
	defer span.End()

	groups, err := s.Detect(ctx)
	if err != nil {
		return BatchReport{}, err
	}
	var exact []ExactGroup
	for _, g := range groups {
		if eg, ok := g.(ExactGroup); ok {
			exact = append(exact, eg)
		}
	}

	report := BatchReport{Groups: len(exact)}
	for i, g := range exact {
		mr, err := s.Merge(ctx, g.Keeper, g.RemoveIDs())
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, BatchFailure{Label: g.Key, Cause: err.Error()})
			s.logger.WarnContext(ctx, "group merge failed", "group", g.Key, "error", err)
		} else {
			report.Merged++
			report.Reports = append(report.Reports, mr)
		}

		if onProgress != nil {
			onProgress((i+1)*100/len(exact), g.Key)
		}
		if i < len(exact)-1 && s.mergeSettle > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(s.mergeSettle):
			}
		}
	}

	s.recordAudit(ctx, audit.Entry{
		Action:      audit.ActionMergeBatch,
		TableName:   "restaurants",
		RecordCount: int64(report.Merged),
		Details: map[string]any{
			"groups": report.Groups,
			"merged": report.Merged,
			"failed": report.Failed,
		},
	})

	if report.Groups > 0 && report.Failed == report.Groups {
		return report, dErrors.Newf(dErrors.CodeWriteFailure,
			"all %d group merges failed", report.Groups)
	}
	return report, nil
}

func (s *Service) ensureExists(ctx context.Context, keepID uuid.UUID) error {
	restaurants, err := s.entities.List(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeReadFailure, "verify merge keeper")
	}
	for _, rec := range restaurants {
		if rec.ID == keepID {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodePrecondition, "merge keeper %s does not exist", keepID)
}

func (s *Service) recordAudit(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", "action", entry.Action, "error", err)
	}
}

func (s *Service) failMergeMetric() {
	if s.metrics != nil {
		s.metrics.MergesTotal.WithLabelValues("error").Inc()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortMembers(members []entity.Restaurant) {
	sort.Slice(members, func(i, j int) bool {
		if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		}
		return members[i].ID.String() < members[j].ID.String()
	})
}
