package models

import (
	"time"
)

// MailboxAccount represents a mailbox an owner has connected for syncing.
// SMTP ingestion only accepts mail addressed to a known account.
type MailboxAccount struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerUserID string    `gorm:"not null;size:64;index" json:"owner_user_id"`
	Address     string    `gorm:"not null;size:255;uniqueIndex" json:"address"`
	Provider    string    `gorm:"not null;size:32" json:"provider"`
	DisplayName string    `gorm:"size:255" json:"display_name,omitempty"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the table name for MailboxAccount
func (MailboxAccount) TableName() string {
	return "mailbox_accounts"
}
