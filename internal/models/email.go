package models

import (
	"time"
)

// Priority levels an analysis result may carry. Anything outside this set is
// rejected rather than defaulted.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Sentiment values an analysis result may carry.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// ValidPriority reports whether p is one of the accepted priority values.
func ValidPriority(p string) bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ValidSentiment reports whether s is one of the accepted sentiment values.
func ValidSentiment(s string) bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// EnrichmentResult holds the AI-derived metadata attached to an email.
// Either Error is empty and the content fields are populated, or Error is set
// and the content fields must not be trusted.
type EnrichmentResult struct {
	Summary     string    `json:"summary"`
	Category    string    `json:"category"`
	Priority    string    `json:"priority"`
	Sentiment   string    `json:"sentiment"`
	ActionItems []string  `json:"action_items"`
	EnrichedAt  time.Time `json:"enriched_at"`
	Version     string    `json:"version"`
	Error       string    `json:"error,omitempty"`
}

// Succeeded reports whether the result represents a completed enrichment.
func (r *EnrichmentResult) Succeeded() bool {
	return r != nil && r.Error == "" && !r.EnrichedAt.IsZero()
}

// Email represents a message synced from a provider mailbox.
// Identity is the (mailbox_address, provider_message_id) pair; the enrichment
// pipeline only ever writes is_processed, ai_meta and updated_at.
type Email struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	OwnerUserID       string `gorm:"not null;size:64;index" json:"owner_user_id"`
	MailboxAddress    string `gorm:"not null;size:255;uniqueIndex:idx_emails_identity" json:"mailbox_address"`
	ProviderMessageID string `gorm:"not null;size:255;uniqueIndex:idx_emails_identity" json:"provider_message_id"`
	Provider          string `gorm:"not null;size:32;default:smtp" json:"provider"`

	Subject     string `json:"subject,omitempty"`
	SenderEmail string `gorm:"not null;size:255" json:"sender_email"`
	SenderName  string `gorm:"size:255" json:"sender_name,omitempty"`
	ToAddresses string `gorm:"size:1024" json:"to_addresses,omitempty"`
	Snippet     string `gorm:"size:255" json:"snippet,omitempty"`
	BodyText    string `json:"body_text,omitempty"`

	// RawPath points into the raw message archive, when the original source
	// was captured (SMTP ingestion does this, provider sync may not).
	RawPath string `gorm:"size:512" json:"-"`

	IsProcessed bool              `gorm:"default:false;index" json:"is_processed"`
	AIMeta      *EnrichmentResult `gorm:"serializer:json" json:"ai_meta,omitempty"`

	ReceivedAt time.Time `gorm:"not null;index" json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the table name for Email
func (Email) TableName() string {
	return "emails"
}

// Identity returns the provider-level identity pair for de-duplication.
func (e *Email) Identity() string {
	return e.MailboxAddress + "/" + e.ProviderMessageID
}

// Enriched reports whether the email already carries a successful result.
func (e *Email) Enriched() bool {
	return e.AIMeta.Succeeded()
}

// EmailListItem is a lightweight version for list views
type EmailListItem struct {
	ID             uint      `json:"id"`
	OwnerUserID    string    `json:"owner_user_id"`
	MailboxAddress string    `json:"mailbox_address"`
	SenderEmail    string    `json:"sender_email"`
	SenderName     string    `json:"sender_name,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	Snippet        string    `json:"snippet,omitempty"`
	IsProcessed    bool      `json:"is_processed"`
	ReceivedAt     time.Time `json:"received_at"`
}
