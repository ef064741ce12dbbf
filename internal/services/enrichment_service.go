package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/mailsense/mailsense-backend/internal/errors"
	"github.com/mailsense/mailsense-backend/internal/models"
	"github.com/mailsense/mailsense-backend/internal/repository"
)

// EnrichmentService is the entry point the API and ingestion paths use.
// Single emails can be enriched synchronously; everything else goes through
// the queue.
type EnrichmentService struct {
	emails      repository.EmailRepository
	analyzer    ChunkAnalyzer
	queue       *EnrichmentQueue
	broadcaster *StatusBroadcaster
	logger      *slog.Logger
}

// NewEnrichmentService creates a new EnrichmentService
func NewEnrichmentService(emails repository.EmailRepository, analyzer ChunkAnalyzer, queue *EnrichmentQueue, broadcaster *StatusBroadcaster, logger *slog.Logger) *EnrichmentService {
	return &EnrichmentService{
		emails:      emails,
		analyzer:    analyzer,
		queue:       queue,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// EnrichEmail enriches one email synchronously and returns the result. When
// the email is already enriched and force is false the stored result comes
// back unchanged, without a provider call.
func (s *EnrichmentService) EnrichEmail(ctx context.Context, emailID uint, force bool) (*models.EnrichmentResult, error) {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if email.MailboxAddress == "" || email.OwnerUserID == "" {
		return nil, apperrors.ErrMissingIdentity
	}

	if email.Enriched() && !force {
		return email.AIMeta, nil
	}
	if force && email.AIMeta != nil {
		if err := s.emails.ClearEnrichment(ctx, email.ID); err != nil {
			return nil, fmt.Errorf("clearing previous enrichment: %w", err)
		}
		email.AIMeta = nil
		email.IsProcessed = false
	}

	s.broadcaster.NotifyEmail(email, EventAnalyzing, nil, "")

	result, err := s.analyzer.AnalyzeOne(ctx, email)
	if err != nil {
		s.broadcaster.NotifyEmail(email, EventError, nil, err.Error())
		// Record the failed attempt so the sweep does not hammer a broken
		// provider with the same email forever.
		failed := &models.EnrichmentResult{
			EnrichedAt: time.Now().UTC(),
			Version:    EnrichmentVersion,
			Error:      err.Error(),
		}
		if saveErr := s.emails.SaveEnrichment(ctx, email.ID, failed, false); saveErr != nil && s.logger != nil {
			s.logger.Error("failed to persist enrichment failure",
				slog.Uint64("email_id", uint64(email.ID)),
				slog.Any("error", saveErr))
		}
		return nil, err
	}

	succeeded := result.Succeeded()
	if err := s.emails.SaveEnrichment(ctx, email.ID, result, succeeded); err != nil {
		s.broadcaster.NotifyEmail(email, EventError, nil, "failed to save enrichment result")
		return nil, fmt.Errorf("saving enrichment: %w", err)
	}

	if succeeded {
		s.broadcaster.NotifyEmail(email, EventCompleted, result, "")
	} else {
		s.broadcaster.NotifyEmail(email, EventError, nil, result.Error)
	}
	return result, nil
}

// EnrichBatch queues the given emails for background enrichment and returns
// how many were admitted.
func (s *EnrichmentService) EnrichBatch(ctx context.Context, emails []*models.Email, force bool) int {
	return s.queue.Enqueue(ctx, emails, force)
}

// EnrichBatchByIDs loads emails by ID and queues them. Unknown IDs are
// skipped, not fatal.
func (s *EnrichmentService) EnrichBatchByIDs(ctx context.Context, emailIDs []uint, force bool) (int, error) {
	emails := make([]*models.Email, 0, len(emailIDs))
	for _, id := range emailIDs {
		email, err := s.emails.GetByID(ctx, id)
		if err != nil {
			if apperrors.IsNotFound(err) || errors.Is(err, repository.ErrNotFound) {
				if s.logger != nil {
					s.logger.Debug("skipping unknown email in batch request", slog.Uint64("email_id", uint64(id)))
				}
				continue
			}
			return 0, err
		}
		emails = append(emails, email)
	}
	return s.queue.Enqueue(ctx, emails, force), nil
}

// SweepUnprocessed queues emails that were stored but never enriched, up to
// limit. The scheduler calls this periodically to catch items lost to
// restarts or earlier transient failures.
func (s *EnrichmentService) SweepUnprocessed(ctx context.Context, limit int) (int, error) {
	backlog, err := s.emails.ListUnprocessed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("listing unprocessed emails: %w", err)
	}
	if len(backlog) == 0 {
		return 0, nil
	}
	emails := make([]*models.Email, len(backlog))
	for i := range backlog {
		emails[i] = &backlog[i]
	}
	admitted := s.queue.Enqueue(ctx, emails, false)
	if s.logger != nil {
		s.logger.Info("enrichment sweep queued backlog",
			slog.Int("found", len(backlog)),
			slog.Int("admitted", admitted))
	}
	return admitted, nil
}

// QueueStatus reports the queue's current depth and activity.
func (s *EnrichmentService) QueueStatus() (depth int, processing bool) {
	return s.queue.Len(), s.queue.IsProcessing()
}
