package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/mailsense/mailsense-backend/internal/errors"
	"github.com/mailsense/mailsense-backend/internal/metrics"
	"github.com/mailsense/mailsense-backend/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

// noSleep replaces real delays in tests.
func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// fakeLLM returns scripted responses in order and records every prompt.
// defaultResponse, when set, answers calls beyond the scripted ones.
type fakeLLM struct {
	mu              sync.Mutex
	responses       []string
	errs            []error
	defaultResponse string
	prompts         []string
}

func (f *fakeLLM) Call(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	if call < len(f.errs) && f.errs[call] != nil {
		return "", f.errs[call]
	}
	if call < len(f.responses) {
		return f.responses[call], nil
	}
	if f.defaultResponse != "" {
		return f.defaultResponse, nil
	}
	return "", fmt.Errorf("unexpected call %d", call)
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// memEmailRepo is an in-memory EmailRepository for pipeline tests.
type memEmailRepo struct {
	mu     sync.Mutex
	emails map[uint]*models.Email

	saveErr  error
	saveLog  []uint
	clearLog []uint
}

func newMemEmailRepo(emails ...*models.Email) *memEmailRepo {
	repo := &memEmailRepo{emails: make(map[uint]*models.Email)}
	for _, e := range emails {
		copied := *e
		repo.emails[e.ID] = &copied
	}
	return repo
}

func (r *memEmailRepo) Create(ctx context.Context, email *models.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *email
	r.emails[email.ID] = &copied
	return nil
}

func (r *memEmailRepo) Upsert(ctx context.Context, email *models.Email) error {
	return r.Create(ctx, email)
}

func (r *memEmailRepo) GetByID(ctx context.Context, id uint) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email, ok := r.emails[id]
	if !ok {
		return nil, apperrors.ErrEmailNotFound
	}
	copied := *email
	return &copied, nil
}

func (r *memEmailRepo) GetByIdentity(ctx context.Context, mailboxAddress, providerMessageID string) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, email := range r.emails {
		if email.MailboxAddress == mailboxAddress && email.ProviderMessageID == providerMessageID {
			copied := *email
			return &copied, nil
		}
	}
	return nil, apperrors.ErrEmailNotFound
}

func (r *memEmailRepo) ListByOwner(ctx context.Context, ownerUserID string, limit, offset int) ([]models.EmailListItem, int64, error) {
	return nil, 0, nil
}

func (r *memEmailRepo) ListUnprocessed(ctx context.Context, limit int) ([]models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Email
	for _, email := range r.emails {
		if !email.IsProcessed && email.AIMeta == nil {
			out = append(out, *email)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memEmailRepo) SaveEnrichment(ctx context.Context, id uint, result *models.EnrichmentResult, processed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	email, ok := r.emails[id]
	if !ok {
		return apperrors.ErrEmailNotFound
	}
	email.AIMeta = result
	email.IsProcessed = processed
	r.saveLog = append(r.saveLog, id)
	return nil
}

func (r *memEmailRepo) ClearEnrichment(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email, ok := r.emails[id]
	if !ok {
		return apperrors.ErrEmailNotFound
	}
	email.AIMeta = nil
	email.IsProcessed = false
	r.clearLog = append(r.clearLog, id)
	return nil
}

func (r *memEmailRepo) savedOrder() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint, len(r.saveLog))
	copy(out, r.saveLog)
	return out
}

func (r *memEmailRepo) stored(id uint) *models.Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	email, ok := r.emails[id]
	if !ok {
		return nil
	}
	copied := *email
	return &copied
}

// fakeCategories serves a fixed category set to every owner.
type fakeCategories struct {
	names []string
	err   error
}

func (f *fakeCategories) Create(ctx context.Context, category *models.Category) error { return nil }

func (f *fakeCategories) ListByOwner(ctx context.Context, ownerUserID string) ([]models.Category, error) {
	return nil, nil
}

func (f *fakeCategories) ListNamesByOwner(ctx context.Context, ownerUserID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.names != nil {
		return f.names, nil
	}
	return models.DefaultCategoryNames, nil
}

func (f *fakeCategories) Delete(ctx context.Context, id uint) error { return nil }

func (f *fakeCategories) SeedDefaults(ctx context.Context, ownerUserID string) error { return nil }

// recordedEvent captures one broadcast for assertions.
type recordedEvent struct {
	Event   string
	Payload StatusPayload
}

// fakeConn records every emitted event.
type fakeConn struct {
	mu      sync.Mutex
	events  []recordedEvent
	emitErr error
}

func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sp, _ := payload.(StatusPayload)
	c.events = append(c.events, recordedEvent{Event: event, Payload: sp})
	return c.emitErr
}

func (c *fakeConn) recorded() []recordedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recordedEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) eventNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.events))
	for i, e := range c.events {
		names[i] = e.Event
	}
	return names
}

// fakeRegistry maps owner user IDs to connections.
type fakeRegistry struct {
	mu    sync.Mutex
	conns map[string][]Connection
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{conns: make(map[string][]Connection)}
}

func (r *fakeRegistry) add(ownerUserID string, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[ownerUserID] = append(r.conns[ownerUserID], conn)
}

func (r *fakeRegistry) FindConnectionsForUser(ownerUserID string) []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[ownerUserID]
}

func testEmail(id uint, owner string) *models.Email {
	return &models.Email{
		ID:                id,
		OwnerUserID:       owner,
		MailboxAddress:    fmt.Sprintf("inbox-%s@example.com", owner),
		ProviderMessageID: fmt.Sprintf("msg-%d", id),
		Provider:          "smtp",
		Subject:           fmt.Sprintf("Subject %d", id),
		SenderEmail:       "sender@example.com",
		SenderName:        "Sender",
		BodyText:          "Please review the quarterly report before Friday.",
		ReceivedAt:        time.Now().Add(-time.Hour),
	}
}

func validAnalysisJSON(summary string) string {
	return fmt.Sprintf(`{"summary": %q, "category": "Work", "priority": "high", "sentiment": "neutral", "action_items": ["review report"]}`, summary)
}
