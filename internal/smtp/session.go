package smtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/mailsense/mailsense-backend/internal/models"
	"github.com/mailsense/mailsense-backend/internal/repository"
	"github.com/mailsense/mailsense-backend/internal/websocket"
)

// Session implements the go-smtp Session interface
type Session struct {
	backend    *Backend
	from       string
	recipients []string
}

// NewSession creates a new SMTP session
func NewSession(backend *Backend) *Session {
	return &Session{
		backend:    backend,
		recipients: make([]string, 0),
	}
}

// AuthPlain handles PLAIN authentication (not required for receiving)
func (s *Session) AuthPlain(username, password string) error {
	// No authentication required for receiving emails
	return nil
}

// Mail handles the MAIL FROM command
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	if s.backend.logger != nil {
		s.backend.logger.Debug("MAIL FROM", slog.String("from", from))
	}
	return nil
}

// Rcpt handles the RCPT TO command. Only addresses belonging to a known,
// active mailbox account are accepted.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	address, err := normalizeAddress(to)
	if err != nil {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Invalid recipient address",
		}
	}

	ctx := context.Background()
	account, err := s.backend.accountRepo.GetByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &smtp.SMTPError{
				Code:         550,
				EnhancedCode: smtp.EnhancedCode{5, 1, 1},
				Message:      "Unknown recipient",
			}
		}
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary error",
		}
	}

	if !account.IsActive {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Recipient is not accepting mail",
		}
	}

	s.recipients = append(s.recipients, address)
	if s.backend.logger != nil {
		s.backend.logger.Debug("RCPT TO", slog.String("to", address))
	}
	return nil
}

// Data handles the DATA command - receives the email content
func (s *Session) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	// The raw bytes are both parsed and archived, so buffer them once. The
	// server already bounds the stream with MaxMessageBytes.
	raw, err := io.ReadAll(r)
	if err != nil {
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Failed to read message",
		}
	}

	parsed, err := ParseEmail(bytes.NewReader(raw))
	if err != nil {
		if s.backend.logger != nil {
			s.backend.logger.Error("failed to parse email", slog.Any("error", err))
		}
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Failed to parse email",
		}
	}

	// Override sender from envelope if not in headers
	if parsed.SenderEmail == "" {
		parsed.SenderEmail = s.from
	}

	ctx := context.Background()
	stored := make([]*models.Email, 0, len(s.recipients))

	// Process for each recipient
	for _, recipient := range s.recipients {
		email, err := s.processEmail(ctx, recipient, parsed, raw)
		if err != nil {
			if s.backend.logger != nil {
				s.backend.logger.Error("failed to process email",
					slog.String("recipient", recipient),
					slog.Any("error", err))
			}
			// Continue processing other recipients
			continue
		}
		stored = append(stored, email)
	}

	if len(stored) > 0 && s.backend.enricher != nil {
		s.backend.enricher.EnrichBatch(ctx, stored, false)
	}

	if s.backend.logger != nil {
		s.backend.logger.Info("email received",
			slog.String("from", s.from),
			slog.Int("recipients", len(s.recipients)),
			slog.String("subject", parsed.Subject))
	}

	return nil
}

// processEmail stores the email for a single recipient and returns the
// persisted record.
func (s *Session) processEmail(ctx context.Context, recipient string, parsed *ParsedEmail, raw []byte) (*models.Email, error) {
	account, err := s.backend.accountRepo.GetByAddress(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	// Messages without a Message-ID still need a stable identity; a random
	// one means re-delivery creates a duplicate rather than silently merging
	// two different messages.
	providerMessageID := parsed.MessageID
	if providerMessageID == "" {
		providerMessageID = "generated-" + uuid.New().String()
	}

	rawPath := ""
	if s.backend.rawStore != nil {
		rawPath, err = s.backend.rawStore.Save(bytes.NewReader(raw))
		if err != nil {
			if s.backend.logger != nil {
				s.backend.logger.Error("failed to archive raw message", slog.Any("error", err))
			}
			// Archival failure is not fatal; the parsed copy survives.
			rawPath = ""
		}
	}

	email := &models.Email{
		OwnerUserID:       account.OwnerUserID,
		MailboxAddress:    account.Address,
		ProviderMessageID: providerMessageID,
		Provider:          "smtp",
		Subject:           parsed.Subject,
		SenderEmail:       parsed.SenderEmail,
		SenderName:        parsed.SenderName,
		ToAddresses:       strings.Join(s.recipients, ", "),
		Snippet:           parsed.Snippet,
		BodyText:          parsed.BodyText,
		RawPath:           rawPath,
		ReceivedAt:        time.Now().UTC(),
	}

	if err := s.backend.emailRepo.Upsert(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to store email: %w", err)
	}

	// An upsert that hit an existing row does not report its ID; read the
	// record back by identity.
	persisted, err := s.backend.emailRepo.GetByIdentity(ctx, email.MailboxAddress, email.ProviderMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload stored email: %w", err)
	}

	// Notify WebSocket subscribers
	if s.backend.wsHub != nil {
		s.backend.wsHub.BroadcastNewEmail(persisted.OwnerUserID, &websocket.NewEmailPayload{
			ID:             persisted.ID,
			MailboxAddress: persisted.MailboxAddress,
			SenderEmail:    persisted.SenderEmail,
			SenderName:     persisted.SenderName,
			Subject:        persisted.Subject,
			ReceivedAt:     persisted.ReceivedAt.Format(time.RFC3339),
		})
	}

	return persisted, nil
}

// Reset resets the session state
func (s *Session) Reset() {
	s.from = ""
	s.recipients = make([]string, 0)
}

// Logout handles the end of the session
func (s *Session) Logout() error {
	return nil
}

// normalizeAddress strips angle brackets and lowercases an SMTP address.
func normalizeAddress(address string) (string, error) {
	address = strings.TrimPrefix(address, "<")
	address = strings.TrimSuffix(address, ">")
	address = strings.ToLower(strings.TrimSpace(address))

	parts := strings.Split(address, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid email address: %s", address)
	}

	return address, nil
}
