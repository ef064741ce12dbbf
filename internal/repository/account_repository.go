package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mailsense/mailsense-backend/internal/models"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for mailbox account data access
type AccountRepository interface {
	Create(ctx context.Context, account *models.MailboxAccount) error
	GetByAddress(ctx context.Context, address string) (*models.MailboxAccount, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]models.MailboxAccount, error)
	SetActive(ctx context.Context, id uint, active bool) error
}

// accountRepository implements AccountRepository using GORM
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new mailbox account
func (r *accountRepository) Create(ctx context.Context, account *models.MailboxAccount) error {
	account.Address = strings.ToLower(strings.TrimSpace(account.Address))
	result := r.db.WithContext(ctx).Create(account)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create mailbox account: %w", result.Error)
	}
	return nil
}

// GetByAddress retrieves a mailbox account by its address (case-insensitive)
func (r *accountRepository) GetByAddress(ctx context.Context, address string) (*models.MailboxAccount, error) {
	var account models.MailboxAccount
	result := r.db.WithContext(ctx).
		Where("address = ?", strings.ToLower(strings.TrimSpace(address))).
		First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by address: %w", result.Error)
	}
	return &account, nil
}

// ListByOwner retrieves all mailbox accounts for an owner
func (r *accountRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]models.MailboxAccount, error) {
	var accounts []models.MailboxAccount
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("address ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// SetActive enables or disables a mailbox account
func (r *accountRepository) SetActive(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.MailboxAccount{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
