package models

import (
	"time"
)

// FallbackCategory is used when the analyzer cannot map a response onto one of
// the owner's configured categories.
const FallbackCategory = "Other"

// DefaultCategoryNames seeds owners that have not configured any categories.
var DefaultCategoryNames = []string{"Work", "Personal", "Finance", "Newsletters", FallbackCategory}

// Category is an owner-configured classification bucket. The analyzer offers
// the owner's category names to the model and never invents new ones.
type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerUserID string    `gorm:"not null;size:64;uniqueIndex:idx_categories_owner_name" json:"owner_user_id"`
	Name        string    `gorm:"not null;size:128;uniqueIndex:idx_categories_owner_name" json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the table name for Category
func (Category) TableName() string {
	return "categories"
}
