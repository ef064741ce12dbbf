package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailsense/mailsense-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmailRepository defines the interface for email data access
type EmailRepository interface {
	Create(ctx context.Context, email *models.Email) error
	Upsert(ctx context.Context, email *models.Email) error
	GetByID(ctx context.Context, id uint) (*models.Email, error)
	GetByIdentity(ctx context.Context, mailboxAddress, providerMessageID string) (*models.Email, error)
	ListByOwner(ctx context.Context, ownerUserID string, limit, offset int) ([]models.EmailListItem, int64, error)
	ListUnprocessed(ctx context.Context, limit int) ([]models.Email, error)
	SaveEnrichment(ctx context.Context, id uint, result *models.EnrichmentResult, processed bool) error
	ClearEnrichment(ctx context.Context, id uint) error
}

// emailRepository implements EmailRepository using GORM
type emailRepository struct {
	db *gorm.DB
}

// NewEmailRepository creates a new EmailRepository instance
func NewEmailRepository(db *gorm.DB) EmailRepository {
	return &emailRepository{db: db}
}

// Create creates a new email record
func (r *emailRepository) Create(ctx context.Context, email *models.Email) error {
	result := r.db.WithContext(ctx).Create(email)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create email: %w", result.Error)
	}
	return nil
}

// Upsert inserts the email or, if the (mailbox_address, provider_message_id)
// pair already exists, refreshes the synced fields. Enrichment columns are
// never touched so a re-sync cannot wipe out an existing result.
func (r *emailRepository) Upsert(ctx context.Context, email *models.Email) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "mailbox_address"}, {Name: "provider_message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subject", "sender_email", "sender_name", "to_addresses",
			"snippet", "body_text", "received_at", "updated_at",
		}),
	}).Create(email)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert email: %w", result.Error)
	}
	return nil
}

// GetByID retrieves an email by its ID
func (r *emailRepository) GetByID(ctx context.Context, id uint) (*models.Email, error) {
	var email models.Email
	result := r.db.WithContext(ctx).First(&email, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email by ID: %w", result.Error)
	}
	return &email, nil
}

// GetByIdentity retrieves an email by its provider-level identity pair
func (r *emailRepository) GetByIdentity(ctx context.Context, mailboxAddress, providerMessageID string) (*models.Email, error) {
	var email models.Email
	result := r.db.WithContext(ctx).
		Where("mailbox_address = ? AND provider_message_id = ?", mailboxAddress, providerMessageID).
		First(&email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email by identity: %w", result.Error)
	}
	return &email, nil
}

// ListByOwner retrieves emails for an owner with pagination, ordered by received_at descending
func (r *emailRepository) ListByOwner(ctx context.Context, ownerUserID string, limit, offset int) ([]models.EmailListItem, int64, error) {
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Email{}).Where("owner_user_id = ?", ownerUserID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count emails: %w", err)
	}

	var results []models.EmailListItem
	err := r.db.WithContext(ctx).Model(&models.Email{}).
		Select("id", "owner_user_id", "mailbox_address", "sender_email", "sender_name", "subject", "snippet", "is_processed", "received_at").
		Where("owner_user_id = ?", ownerUserID).
		Order("received_at DESC").
		Limit(limit).Offset(offset).
		Scan(&results).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list emails: %w", err)
	}

	return results, total, nil
}

// ListUnprocessed retrieves emails that have never been enriched, oldest
// first. Records with a stored error are excluded; those wait for an explicit
// forced re-run.
func (r *emailRepository) ListUnprocessed(ctx context.Context, limit int) ([]models.Email, error) {
	var emails []models.Email
	err := r.db.WithContext(ctx).
		Where("is_processed = ? AND ai_meta IS NULL", false).
		Order("received_at ASC").
		Limit(limit).
		Find(&emails).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed emails: %w", err)
	}
	return emails, nil
}

// SaveEnrichment writes the enrichment result and processed flag for an email
func (r *emailRepository) SaveEnrichment(ctx context.Context, id uint, enrichResult *models.EnrichmentResult, processed bool) error {
	result := r.db.WithContext(ctx).Model(&models.Email{}).
		Where("id = ?", id).
		Select("ai_meta", "is_processed").
		Updates(models.Email{AIMeta: enrichResult, IsProcessed: processed})
	if result.Error != nil {
		return fmt.Errorf("failed to save enrichment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearEnrichment resets the enrichment state so the email can be reprocessed
func (r *emailRepository) ClearEnrichment(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.Email{}).
		Where("id = ?", id).
		Select("ai_meta", "is_processed").
		Updates(models.Email{AIMeta: nil, IsProcessed: false})
	if result.Error != nil {
		return fmt.Errorf("failed to clear enrichment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
