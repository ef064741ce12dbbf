package services

import (
	"log/slog"

	"github.com/mailsense/mailsense-backend/internal/metrics"
	"github.com/mailsense/mailsense-backend/internal/models"
)

// Enrichment lifecycle events, emitted per item in this order with exactly
// one terminal event per enqueue.
const (
	EventQueued    = "enrichment_queued"
	EventAnalyzing = "enrichment_analyzing"
	EventCompleted = "enrichment_completed"
	EventError     = "enrichment_error"
)

// Connection is a single live client connection.
type Connection interface {
	Emit(event string, payload any) error
}

// ConnectionRegistry resolves the live connections belonging to a user.
// The websocket hub implements this; tests inject fakes.
type ConnectionRegistry interface {
	FindConnectionsForUser(ownerUserID string) []Connection
}

// StatusPayload is the event payload for enrichment lifecycle events.
type StatusPayload struct {
	EmailID           uint                     `json:"email_id"`
	MailboxAddress    string                   `json:"mailbox_address"`
	ProviderMessageID string                   `json:"provider_message_id"`
	Result            *models.EnrichmentResult `json:"result,omitempty"`
	Error             string                   `json:"error,omitempty"`
}

// StatusBroadcaster pushes enrichment progress to the owning user's live
// connections. Enrichment never fails or blocks because nobody is listening.
type StatusBroadcaster struct {
	registry ConnectionRegistry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewStatusBroadcaster creates a new StatusBroadcaster
func NewStatusBroadcaster(registry ConnectionRegistry, m *metrics.Metrics, logger *slog.Logger) *StatusBroadcaster {
	return &StatusBroadcaster{
		registry: registry,
		logger:   logger,
		metrics:  m,
	}
}

// Notify emits event with payload to every live connection of ownerUserID.
// Emit failures on one connection don't stop delivery to the others.
func (b *StatusBroadcaster) Notify(ownerUserID, event string, payload StatusPayload) {
	if b == nil || b.registry == nil {
		return
	}

	connections := b.registry.FindConnectionsForUser(ownerUserID)
	if len(connections) == 0 {
		if b.metrics != nil {
			b.metrics.BroadcastsDropped.Inc()
		}
		return
	}

	for _, conn := range connections {
		if err := conn.Emit(event, payload); err != nil && b.logger != nil {
			b.logger.Debug("failed to emit status event",
				slog.String("event", event),
				slog.String("owner_user_id", ownerUserID),
				slog.Any("error", err))
		}
	}
}

// NotifyEmail is a convenience wrapper building the payload from an email.
func (b *StatusBroadcaster) NotifyEmail(email *models.Email, event string, result *models.EnrichmentResult, errMessage string) {
	b.Notify(email.OwnerUserID, event, StatusPayload{
		EmailID:           email.ID,
		MailboxAddress:    email.MailboxAddress,
		ProviderMessageID: email.ProviderMessageID,
		Result:            result,
		Error:             errMessage,
	})
}
