package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mailsense/mailsense-backend/internal/api/response"
	"github.com/mailsense/mailsense-backend/internal/models"
	"github.com/mailsense/mailsense-backend/internal/repository"
	"github.com/mailsense/mailsense-backend/internal/services"
	"github.com/mailsense/mailsense-backend/internal/validator"
)

// IngestHandler accepts batches of mail synced from external providers.
// Re-posting the same batch is safe: storage is an identity upsert and the
// queue skips already-enriched messages.
type IngestHandler struct {
	accountRepo repository.AccountRepository
	emailRepo   repository.EmailRepository
	enricher    *services.EnrichmentService
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(accountRepo repository.AccountRepository, emailRepo repository.EmailRepository, enricher *services.EnrichmentService) *IngestHandler {
	return &IngestHandler{
		accountRepo: accountRepo,
		emailRepo:   emailRepo,
		enricher:    enricher,
	}
}

// IngestEmail is one synced message in an ingest batch
type IngestEmail struct {
	ProviderMessageID string    `json:"provider_message_id"`
	Subject           string    `json:"subject"`
	SenderEmail       string    `json:"sender_email"`
	SenderName        string    `json:"sender_name"`
	ToAddresses       string    `json:"to_addresses"`
	Snippet           string    `json:"snippet"`
	BodyText          string    `json:"body_text"`
	ReceivedAt        time.Time `json:"received_at"`
}

// IngestRequest is the body for POST /api/sync/ingest
type IngestRequest struct {
	MailboxAddress string        `json:"mailbox_address"`
	Provider       string        `json:"provider"`
	Emails         []IngestEmail `json:"emails"`
}

// IngestResponse reports what happened to an ingest batch
type IngestResponse struct {
	Received int `json:"received"`
	Stored   int `json:"stored"`
	Queued   int `json:"queued"`
}

// Ingest handles POST /api/sync/ingest. The mailbox must belong to a known,
// active account; stored messages are queued for enrichment.
func (h *IngestHandler) Ingest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if err := validator.ValidateEmail(req.MailboxAddress); err != nil {
		return response.BadRequest(c, "invalid mailbox_address")
	}
	if len(req.Emails) == 0 {
		return response.BadRequest(c, "emails is required")
	}

	ctx := c.Request().Context()
	address := strings.ToLower(strings.TrimSpace(req.MailboxAddress))

	account, err := h.accountRepo.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "mailbox account not found")
		}
		return response.InternalError(c, "failed to resolve account")
	}
	if !account.IsActive {
		return response.BadRequest(c, "mailbox account is not active")
	}

	provider := validator.SanitizeString(req.Provider, 32)
	if provider == "" {
		provider = account.Provider
	}

	stored := make([]*models.Email, 0, len(req.Emails))
	for _, in := range req.Emails {
		if in.ProviderMessageID == "" || in.SenderEmail == "" {
			continue
		}
		receivedAt := in.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = time.Now().UTC()
		}
		email := &models.Email{
			OwnerUserID:       account.OwnerUserID,
			MailboxAddress:    account.Address,
			ProviderMessageID: in.ProviderMessageID,
			Provider:          provider,
			Subject:           in.Subject,
			SenderEmail:       in.SenderEmail,
			SenderName:        in.SenderName,
			ToAddresses:       in.ToAddresses,
			Snippet:           validator.SanitizeString(in.Snippet, 255),
			BodyText:          in.BodyText,
			ReceivedAt:        receivedAt,
		}
		if err := h.emailRepo.Upsert(ctx, email); err != nil {
			continue
		}
		persisted, err := h.emailRepo.GetByIdentity(ctx, email.MailboxAddress, email.ProviderMessageID)
		if err != nil {
			continue
		}
		stored = append(stored, persisted)
	}

	queued := 0
	if len(stored) > 0 {
		queued = h.enricher.EnrichBatch(ctx, stored, false)
	}

	return response.Accepted(c, IngestResponse{
		Received: len(req.Emails),
		Stored:   len(stored),
		Queued:   queued,
	})
}
