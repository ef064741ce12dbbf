package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mailsense/mailsense-backend/internal/models"
)

// MockEmailRepository implements repository.EmailRepository
type MockEmailRepository struct {
	mock.Mock
}

// Create creates a new email
func (m *MockEmailRepository) Create(ctx context.Context, email *models.Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// Upsert inserts or updates an email by its identity pair
func (m *MockEmailRepository) Upsert(ctx context.Context, email *models.Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// GetByID retrieves an email by its ID
func (m *MockEmailRepository) GetByID(ctx context.Context, id uint) (*models.Email, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Email), args.Error(1)
}

// GetByIdentity retrieves an email by its (mailbox, provider message) pair
func (m *MockEmailRepository) GetByIdentity(ctx context.Context, mailboxAddress, providerMessageID string) (*models.Email, error) {
	args := m.Called(ctx, mailboxAddress, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Email), args.Error(1)
}

// ListByOwner retrieves emails for an owner with pagination
func (m *MockEmailRepository) ListByOwner(ctx context.Context, ownerUserID string, limit, offset int) ([]models.EmailListItem, int64, error) {
	args := m.Called(ctx, ownerUserID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.EmailListItem), args.Get(1).(int64), args.Error(2)
}

// ListUnprocessed retrieves stored emails that never got enriched
func (m *MockEmailRepository) ListUnprocessed(ctx context.Context, limit int) ([]models.Email, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Email), args.Error(1)
}

// SaveEnrichment persists an enrichment result
func (m *MockEmailRepository) SaveEnrichment(ctx context.Context, id uint, result *models.EnrichmentResult, processed bool) error {
	args := m.Called(ctx, id, result, processed)
	return args.Error(0)
}

// ClearEnrichment removes a stored enrichment result
func (m *MockEmailRepository) ClearEnrichment(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAccountRepository implements repository.AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

// Create creates a new mailbox account
func (m *MockAccountRepository) Create(ctx context.Context, account *models.MailboxAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// GetByAddress retrieves a mailbox account by its address
func (m *MockAccountRepository) GetByAddress(ctx context.Context, address string) (*models.MailboxAccount, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MailboxAccount), args.Error(1)
}

// ListByOwner retrieves all mailbox accounts for an owner
func (m *MockAccountRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]models.MailboxAccount, error) {
	args := m.Called(ctx, ownerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MailboxAccount), args.Error(1)
}

// SetActive enables or disables a mailbox account
func (m *MockAccountRepository) SetActive(ctx context.Context, id uint, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

// MockCategoryRepository implements repository.CategoryRepository
type MockCategoryRepository struct {
	mock.Mock
}

// Create creates a new category
func (m *MockCategoryRepository) Create(ctx context.Context, category *models.Category) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

// ListByOwner retrieves all categories for an owner
func (m *MockCategoryRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]models.Category, error) {
	args := m.Called(ctx, ownerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Category), args.Error(1)
}

// ListNamesByOwner retrieves the category names for an owner
func (m *MockCategoryRepository) ListNamesByOwner(ctx context.Context, ownerUserID string) ([]string, error) {
	args := m.Called(ctx, ownerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// Delete deletes a category by its ID
func (m *MockCategoryRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// SeedDefaults creates the default categories for an owner that has none
func (m *MockCategoryRepository) SeedDefaults(ctx context.Context, ownerUserID string) error {
	args := m.Called(ctx, ownerUserID)
	return args.Error(0)
}
