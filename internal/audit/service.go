package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"steward/internal/platform/middleware"
)

// Publisher mirrors entries to an external sink (Kafka) for long retention.
// Mirroring is best-effort: a failed publish is logged and counted, never
// allowed to fail the mutation that produced the entry.
type Publisher interface {
	Publish(ctx context.Context, entry Entry) error
}

// FailureCounter is the slice of the metrics surface this package needs.
type FailureCounter interface {
	Inc()
}

// Service records audit entries, synchronously by default or through a
// buffered channel when configured with WithAsyncBuffer. Close drains the
// buffer before returning.
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	failures  FailureCounter

	inbox chan Entry
	wg    sync.WaitGroup
	once  sync.Once
}

type Option func(s *Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithPublishFailureCounter(c FailureCounter) Option {
	return func(s *Service) { s.failures = c }
}

// WithAsyncBuffer switches the service to asynchronous persistence with the
// given channel capacity. Record hands the entry to a background writer and
// returns before the append; once the buffer is full Record blocks until the
// writer catches up. Entries are never dropped: the trail must stay complete.
func WithAsyncBuffer(size int) Option {
	return func(s *Service) { s.inbox = make(chan Entry, size) }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.inbox != nil {
		s.wg.Add(1)
		go s.drain()
	}
	return s
}

// Record assigns identity and timestamp, enriches the entry from the request
// context, persists it, and mirrors it.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Actor == "" {
		entry.Actor = middleware.GetActor(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = middleware.GetRequestID(ctx)
	}
	if info := middleware.GetClientInfo(ctx); info.Raw != "" {
		if entry.Details == nil {
			entry.Details = make(map[string]any)
		}
		entry.Details["client"] = map[string]any{
			"browser": info.Browser,
			"os":      info.OS,
			"mobile":  info.Mobile,
		}
	}

	if s.inbox != nil {
		s.inbox <- entry
		return nil
	}
	return s.persist(ctx, entry)
}

// ListRecent returns the latest entries for operator display.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	return s.store.ListRecent(ctx, limit)
}

// Close drains the async buffer, if any.
func (s *Service) Close() {
	s.once.Do(func() {
		if s.inbox != nil {
			close(s.inbox)
			s.wg.Wait()
		}
	})
}

func (s *Service) drain() {
	defer s.wg.Done()
	for entry := range s.inbox {
		if err := s.persist(context.Background(), entry); err != nil {
			s.logger.Error("audit append failed", "action", entry.Action, "error", err)
		}
	}
}

func (s *Service) persist(ctx context.Context, entry Entry) error {
	if err := s.store.Append(ctx, entry); err != nil {
		return err
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, entry); err != nil {
			s.logger.WarnContext(ctx, "audit publish failed",
				"action", entry.Action,
				"entry_id", entry.ID,
				"error", err,
			)
			if s.failures != nil {
				s.failures.Inc()
			}
		}
	}
	return nil
}
