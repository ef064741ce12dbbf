package fixtures

import (
	"fmt"
	"time"

	"github.com/mailsense/mailsense-backend/internal/models"
)

// AccountBuilder creates test MailboxAccount instances with fluent API
type AccountBuilder struct {
	account models.MailboxAccount
}

// NewAccountBuilder creates a new AccountBuilder with sensible defaults
func NewAccountBuilder() *AccountBuilder {
	now := time.Now()
	return &AccountBuilder{
		account: models.MailboxAccount{
			ID:          1,
			OwnerUserID: "user-1",
			Address:     "inbox@example.com",
			Provider:    "smtp",
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// WithID sets the account ID
func (b *AccountBuilder) WithID(id uint) *AccountBuilder {
	b.account.ID = id
	return b
}

// WithOwner sets the owner user ID
func (b *AccountBuilder) WithOwner(ownerUserID string) *AccountBuilder {
	b.account.OwnerUserID = ownerUserID
	return b
}

// WithAddress sets the mailbox address
func (b *AccountBuilder) WithAddress(address string) *AccountBuilder {
	b.account.Address = address
	return b
}

// WithProvider sets the provider
func (b *AccountBuilder) WithProvider(provider string) *AccountBuilder {
	b.account.Provider = provider
	return b
}

// WithActive sets the active flag
func (b *AccountBuilder) WithActive(active bool) *AccountBuilder {
	b.account.IsActive = active
	return b
}

// Build returns the constructed MailboxAccount
func (b *AccountBuilder) Build() *models.MailboxAccount {
	return &b.account
}

// BuildValue returns the constructed MailboxAccount as a value (not pointer)
func (b *AccountBuilder) BuildValue() models.MailboxAccount {
	return b.account
}

// EmailBuilder creates test Email instances with fluent API
type EmailBuilder struct {
	email models.Email
}

// NewEmailBuilder creates a new EmailBuilder with sensible defaults
func NewEmailBuilder() *EmailBuilder {
	now := time.Now()
	return &EmailBuilder{
		email: models.Email{
			ID:                1,
			OwnerUserID:       "user-1",
			MailboxAddress:    "inbox@example.com",
			ProviderMessageID: "msg-1@external.com",
			Provider:          "smtp",
			Subject:           "Test Subject",
			SenderEmail:       "sender@external.com",
			SenderName:        "Test Sender",
			Snippet:           "This is a test email...",
			BodyText:          "This is a test email body.",
			ReceivedAt:        now,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
	}
}

// WithID sets the email ID
func (b *EmailBuilder) WithID(id uint) *EmailBuilder {
	b.email.ID = id
	return b
}

// WithOwner sets the owner user ID
func (b *EmailBuilder) WithOwner(ownerUserID string) *EmailBuilder {
	b.email.OwnerUserID = ownerUserID
	return b
}

// WithMailbox sets the mailbox address
func (b *EmailBuilder) WithMailbox(address string) *EmailBuilder {
	b.email.MailboxAddress = address
	return b
}

// WithProviderMessageID sets the provider message ID
func (b *EmailBuilder) WithProviderMessageID(id string) *EmailBuilder {
	b.email.ProviderMessageID = id
	return b
}

// WithProvider sets the provider
func (b *EmailBuilder) WithProvider(provider string) *EmailBuilder {
	b.email.Provider = provider
	return b
}

// WithSender sets the sender email and name
func (b *EmailBuilder) WithSender(email, name string) *EmailBuilder {
	b.email.SenderEmail = email
	b.email.SenderName = name
	return b
}

// WithSubject sets the email subject
func (b *EmailBuilder) WithSubject(subject string) *EmailBuilder {
	b.email.Subject = subject
	return b
}

// WithBodyText sets the text body
func (b *EmailBuilder) WithBodyText(text string) *EmailBuilder {
	b.email.BodyText = text
	return b
}

// WithReceivedAt sets the received timestamp
func (b *EmailBuilder) WithReceivedAt(t time.Time) *EmailBuilder {
	b.email.ReceivedAt = t
	return b
}

// WithEnrichment attaches an enrichment result and marks the email processed
func (b *EmailBuilder) WithEnrichment(result *models.EnrichmentResult) *EmailBuilder {
	b.email.AIMeta = result
	b.email.IsProcessed = result.Succeeded()
	return b
}

// Build returns the constructed Email
func (b *EmailBuilder) Build() *models.Email {
	return &b.email
}

// BuildValue returns the constructed Email as a value (not pointer)
func (b *EmailBuilder) BuildValue() models.Email {
	return b.email
}

// EnrichmentBuilder creates test EnrichmentResult instances with fluent API
type EnrichmentBuilder struct {
	result models.EnrichmentResult
}

// NewEnrichmentBuilder creates a new EnrichmentBuilder with sensible defaults
func NewEnrichmentBuilder() *EnrichmentBuilder {
	return &EnrichmentBuilder{
		result: models.EnrichmentResult{
			Summary:     "A short summary of the email.",
			Category:    "Work",
			Priority:    models.PriorityMedium,
			Sentiment:   models.SentimentNeutral,
			ActionItems: []string{"reply to sender"},
			EnrichedAt:  time.Now().UTC(),
			Version:     "v1",
		},
	}
}

// WithSummary sets the summary
func (b *EnrichmentBuilder) WithSummary(summary string) *EnrichmentBuilder {
	b.result.Summary = summary
	return b
}

// WithCategory sets the category
func (b *EnrichmentBuilder) WithCategory(category string) *EnrichmentBuilder {
	b.result.Category = category
	return b
}

// WithPriority sets the priority
func (b *EnrichmentBuilder) WithPriority(priority string) *EnrichmentBuilder {
	b.result.Priority = priority
	return b
}

// WithSentiment sets the sentiment
func (b *EnrichmentBuilder) WithSentiment(sentiment string) *EnrichmentBuilder {
	b.result.Sentiment = sentiment
	return b
}

// WithError turns the result into a failure record
func (b *EnrichmentBuilder) WithError(message string) *EnrichmentBuilder {
	b.result.Error = message
	return b
}

// Build returns the constructed EnrichmentResult
func (b *EnrichmentBuilder) Build() *models.EnrichmentResult {
	return &b.result
}

// CategoryBuilder creates test Category instances with fluent API
type CategoryBuilder struct {
	category models.Category
}

// NewCategoryBuilder creates a new CategoryBuilder with sensible defaults
func NewCategoryBuilder() *CategoryBuilder {
	now := time.Now()
	return &CategoryBuilder{
		category: models.Category{
			ID:          1,
			OwnerUserID: "user-1",
			Name:        "Work",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
}

// WithID sets the category ID
func (b *CategoryBuilder) WithID(id uint) *CategoryBuilder {
	b.category.ID = id
	return b
}

// WithOwner sets the owner user ID
func (b *CategoryBuilder) WithOwner(ownerUserID string) *CategoryBuilder {
	b.category.OwnerUserID = ownerUserID
	return b
}

// WithName sets the category name
func (b *CategoryBuilder) WithName(name string) *CategoryBuilder {
	b.category.Name = name
	return b
}

// Build returns the constructed Category
func (b *CategoryBuilder) Build() *models.Category {
	return &b.category
}

// BuildValue returns the constructed Category as a value (not pointer)
func (b *CategoryBuilder) BuildValue() models.Category {
	return b.category
}

// Helper functions for creating multiple test entities

// CreateEmails creates a slice of emails for one owner with sequential IDs
func CreateEmails(owner string, count int) []models.Email {
	emails := make([]models.Email, count)
	for i := 0; i < count; i++ {
		emails[i] = NewEmailBuilder().
			WithID(uint(i + 1)).
			WithOwner(owner).
			WithMailbox(owner + "@example.com").
			WithProviderMessageID(fmt.Sprintf("msg-%d@external.com", i+1)).
			WithSubject(generateSubject(i)).
			WithReceivedAt(time.Now().Add(-time.Duration(i) * time.Hour)).
			BuildValue()
	}
	return emails
}

// CreateAccounts creates a slice of accounts for one owner
func CreateAccounts(owner string, count int) []models.MailboxAccount {
	accounts := make([]models.MailboxAccount, count)
	for i := 0; i < count; i++ {
		accounts[i] = NewAccountBuilder().
			WithID(uint(i + 1)).
			WithOwner(owner).
			WithAddress(fmt.Sprintf("%s-%d@example.com", owner, i+1)).
			BuildValue()
	}
	return accounts
}

func generateSubject(index int) string {
	subjects := []string{
		"Welcome to our service",
		"Your order confirmation",
		"Important update",
		"Newsletter",
		"Account notification",
	}
	return subjects[index%len(subjects)]
}
