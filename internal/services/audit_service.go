package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/repositories"
	"github.com/campuscare/clinicdesk/pkg/metrics"
)

// AuditLogStore persists audit entries.
type AuditLogStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter repositories.AuditLogFilter, limit, offset int) ([]*models.AuditLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditPublisher mirrors audit entries to an external bus. Optional.
type AuditPublisher interface {
	Publish(ctx context.Context, entry *models.AuditLog) error
}

// AuditService writes the audit trail through a buffered worker so request
// handlers never wait on the audit table. Entries are dropped, counted, and
// logged when the buffer is full; the trail is best-effort by contract.
type AuditService struct {
	store     AuditLogStore
	publisher AuditPublisher
	buffer    chan *models.AuditLog
	logger    *slog.Logger
	metrics   *metrics.Collector

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewAuditService(store AuditLogStore, publisher AuditPublisher, bufferSize int, logger *slog.Logger, collector *metrics.Collector) *AuditService {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	s := &AuditService{
		store:     store,
		publisher: publisher,
		buffer:    make(chan *models.AuditLog, bufferSize),
		logger:    logger,
		metrics:   collector,
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// Record enqueues an audit entry without blocking the caller.
func (s *AuditService) Record(_ context.Context, entry *models.AuditLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	select {
	case s.buffer <- entry:
	default:
		s.metrics.AuditBufferDropped.Inc()
		s.logger.Error("audit buffer full, entry dropped",
			slog.String("event_type", entry.EventType))
	}
}

// List returns audit entries for the admin view.
func (s *AuditService) List(ctx context.Context, filter repositories.AuditLogFilter, limit, offset int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, filter, limit, offset)
}

// DeleteOlderThan applies the retention policy; called by the cleanup job.
func (s *AuditService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.DeleteOlderThan(ctx, cutoff)
}

// Close stops accepting entries and drains the buffer.
func (s *AuditService) Close() {
	s.closeOnce.Do(func() {
		close(s.buffer)
	})
	s.wg.Wait()
}

func (s *AuditService) worker() {
	defer s.wg.Done()

	for entry := range s.buffer {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := s.store.Create(ctx, entry); err != nil {
			s.logger.Error("failed to persist audit entry",
				slog.String("event_type", entry.EventType),
				slog.Any("error", err))
		} else {
			s.metrics.AuditEntriesTotal.Inc()
		}

		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, entry); err != nil {
				s.logger.Warn("failed to mirror audit entry",
					slog.String("event_type", entry.EventType),
					slog.Any("error", err))
			}
		}

		cancel()
	}
}
