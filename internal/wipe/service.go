// Package wipe is the backup-guarded bulk delete of the restaurant store and
// every dependent table.
package wipe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"steward/internal/audit"
	"steward/internal/backup"
	"steward/internal/entity"
	"steward/internal/platform/metrics"
	dErrors "steward/pkg/domain-errors"
)

// Confirmation is the literal phrase an operator must supply. It is a guard
// against misclick, not a security control; authentication happens at the
// transport layer.
const Confirmation = "DELETE ALL RESTAURANT DATA"

// EntityStore is the slice of the entity store the wipe consumes.
type EntityStore interface {
	Snapshot(ctx context.Context) (backup.Snapshot, error)
	DeleteDependents(ctx context.Context, table string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Auditor records mutating actions.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Report records what a wipe removed and where the backup went.
type Report struct {
	BackupLocation string
	// RowsDeleted maps table name to rows removed; "restaurants" included.
	RowsDeleted map[string]int64
	Total       int64
}

type Service struct {
	entities EntityStore
	sink     backup.Sink
	auditor  Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
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

func New(entities EntityStore, sink backup.Sink, opts ...Option) *Service {
	s := &Service{
		entities: entities,
		sink:     sink,
		logger:   slog.Default(),
		tracer:   otel.Tracer("steward/wipe"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeleteAll snapshots the entire restaurant data set, durably stores the
// artifact, and only then deletes every dependent table followed by the
// restaurant table. A failed backup means nothing is deleted; this ordering is
// the one hard happens-before constraint in the system.
func (s *Service) DeleteAll(ctx context.Context, confirmation string) (Report, error) {
	ctx, span := s.tracer.Start(ctx, "wipe.DeleteAll")
	defer span.End()

	if confirmation != Confirmation {
		return Report{}, dErrors.Newf(dErrors.CodePrecondition,
			"confirmation phrase mismatch; expected %q", Confirmation)
	}

	snap, err := s.entities.Snapshot(ctx)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeReadFailure, "snapshot before bulk delete")
	}
	location, err := s.sink.Store(ctx, snap)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeWriteFailure, "store backup before bulk delete")
	}
	s.logger.InfoContext(ctx, "backup stored", "location", location, "rows", snap.TotalRows())

	report := Report{BackupLocation: location, RowsDeleted: make(map[string]int64)}
	// Child tables first so no delete ever trips a foreign key.
	for _, table := range entity.WipeTables() {
		n, err := s.entities.DeleteDependents(ctx, table)
		if err != nil {
			return report, dErrors.Wrapf(err, dErrors.CodeWriteFailure,
				"bulk delete %s (backup at %s)", table, location)
		}
		report.RowsDeleted[table] = n
		report.Total += n
	}
	n, err := s.entities.DeleteAll(ctx)
	if err != nil {
		return report, dErrors.Wrapf(err, dErrors.CodeWriteFailure,
			"bulk delete restaurants (backup at %s)", location)
	}
	report.RowsDeleted["restaurants"] = n
	report.Total += n

	if s.metrics != nil {
		s.metrics.WipesTotal.Inc()
	}
	s.recordAudit(ctx, audit.Entry{
		Action:      audit.ActionWipe,
		TableName:   "restaurants",
		RecordCount: report.Total,
		Details: map[string]any{
			"backup_location": location,
			"rows_deleted":    report.RowsDeleted,
		},
	})
	s.logger.InfoContext(ctx, "bulk delete complete",
		"total_rows", report.Total,
		"backup", location,
	)
	return report, nil
}

func (s *Service) recordAudit(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", "action", entry.Action, "error", err)
	}
}
