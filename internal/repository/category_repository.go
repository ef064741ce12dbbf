package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailsense/mailsense-backend/internal/models"
	"gorm.io/gorm"
)

// CategoryRepository defines the interface for category data access
type CategoryRepository interface {
	Create(ctx context.Context, category *models.Category) error
	ListByOwner(ctx context.Context, ownerUserID string) ([]models.Category, error)
	ListNamesByOwner(ctx context.Context, ownerUserID string) ([]string, error)
	Delete(ctx context.Context, id uint) error
	SeedDefaults(ctx context.Context, ownerUserID string) error
}

// categoryRepository implements CategoryRepository using GORM
type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a new CategoryRepository instance
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// Create creates a new category
func (r *categoryRepository) Create(ctx context.Context, category *models.Category) error {
	result := r.db.WithContext(ctx).Create(category)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create category: %w", result.Error)
	}
	return nil
}

// ListByOwner retrieves all categories for an owner, ordered by name
func (r *categoryRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// ListNamesByOwner retrieves the category names for an owner. Owners without
// configured categories get the default set so the analyzer always has valid
// choices to offer.
func (r *categoryRepository) ListNamesByOwner(ctx context.Context, ownerUserID string) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&models.Category{}).
		Where("owner_user_id = ?", ownerUserID).
		Order("name ASC").
		Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list category names: %w", err)
	}
	if len(names) == 0 {
		return append([]string(nil), models.DefaultCategoryNames...), nil
	}
	return names, nil
}

// Delete deletes a category by its ID
func (r *categoryRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Category{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete category: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedDefaults creates the default categories for an owner that has none
func (r *categoryRepository) SeedDefaults(ctx context.Context, ownerUserID string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Category{}).Where("owner_user_id = ?", ownerUserID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count categories: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, name := range models.DefaultCategoryNames {
		category := &models.Category{OwnerUserID: ownerUserID, Name: name}
		if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("failed to seed category %q: %w", name, err)
		}
	}
	return nil
}
