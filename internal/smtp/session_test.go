package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsense/mailsense-backend/internal/models"
	"github.com/mailsense/mailsense-backend/internal/repository"
)

// stubAccountRepo serves mailbox accounts from a map keyed by address.
type stubAccountRepo struct {
	accounts map[string]*models.MailboxAccount
}

func newStubAccountRepo(accounts ...*models.MailboxAccount) *stubAccountRepo {
	r := &stubAccountRepo{accounts: make(map[string]*models.MailboxAccount)}
	for _, a := range accounts {
		r.accounts[strings.ToLower(a.Address)] = a
	}
	return r
}

func (r *stubAccountRepo) Create(ctx context.Context, account *models.MailboxAccount) error {
	r.accounts[strings.ToLower(account.Address)] = account
	return nil
}

func (r *stubAccountRepo) GetByAddress(ctx context.Context, address string) (*models.MailboxAccount, error) {
	account, ok := r.accounts[strings.ToLower(strings.TrimSpace(address))]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return account, nil
}

func (r *stubAccountRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]models.MailboxAccount, error) {
	var out []models.MailboxAccount
	for _, a := range r.accounts {
		if a.OwnerUserID == ownerUserID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *stubAccountRepo) SetActive(ctx context.Context, id uint, active bool) error {
	for _, a := range r.accounts {
		if a.ID == id {
			a.IsActive = active
			return nil
		}
	}
	return repository.ErrNotFound
}

// stubEmailRepo records upserts and serves them back by identity.
type stubEmailRepo struct {
	mu     sync.Mutex
	nextID uint
	emails map[string]*models.Email
	order  []string
}

func newStubEmailRepo() *stubEmailRepo {
	return &stubEmailRepo{emails: make(map[string]*models.Email)}
}

func identityKey(mailboxAddress, providerMessageID string) string {
	return mailboxAddress + "\x00" + providerMessageID
}

func (r *stubEmailRepo) Create(ctx context.Context, email *models.Email) error {
	return r.Upsert(ctx, email)
}

func (r *stubEmailRepo) Upsert(ctx context.Context, email *models.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := identityKey(email.MailboxAddress, email.ProviderMessageID)
	if existing, ok := r.emails[key]; ok {
		copied := *email
		copied.ID = existing.ID
		r.emails[key] = &copied
		return nil
	}
	r.nextID++
	copied := *email
	copied.ID = r.nextID
	r.emails[key] = &copied
	r.order = append(r.order, key)
	return nil
}

func (r *stubEmailRepo) GetByID(ctx context.Context, id uint) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.emails {
		if e.ID == id {
			copied := *e
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubEmailRepo) GetByIdentity(ctx context.Context, mailboxAddress, providerMessageID string) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.emails[identityKey(mailboxAddress, providerMessageID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (r *stubEmailRepo) ListByOwner(ctx context.Context, ownerUserID string, limit, offset int) ([]models.EmailListItem, int64, error) {
	return nil, 0, nil
}

func (r *stubEmailRepo) ListUnprocessed(ctx context.Context, limit int) ([]models.Email, error) {
	return nil, nil
}

func (r *stubEmailRepo) SaveEnrichment(ctx context.Context, id uint, result *models.EnrichmentResult, processed bool) error {
	return nil
}

func (r *stubEmailRepo) ClearEnrichment(ctx context.Context, id uint) error {
	return nil
}

func (r *stubEmailRepo) all() []*models.Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Email, 0, len(r.order))
	for _, key := range r.order {
		copied := *r.emails[key]
		out = append(out, &copied)
	}
	return out
}

func newTestBackend(accounts *stubAccountRepo, emails *stubEmailRepo) *Backend {
	return NewBackend(&BackendConfig{
		AccountRepo: accounts,
		EmailRepo:   emails,
		Logger:      slog.New(slog.NewTextHandler(discardWriter{}, nil)),
	})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func activeAccount(id uint, owner, address string) *models.MailboxAccount {
	return &models.MailboxAccount{
		ID:          id,
		OwnerUserID: owner,
		Address:     address,
		Provider:    "smtp",
		IsActive:    true,
	}
}

// ==================== Rcpt Tests ====================

func TestSession_Rcpt_KnownRecipient(t *testing.T) {
	accounts := newStubAccountRepo(activeAccount(1, "user-1", "inbox@example.com"))
	session := NewSession(newTestBackend(accounts, newStubEmailRepo()))

	err := session.Rcpt("<Inbox@Example.com>", nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"inbox@example.com"}, session.recipients)
}

func TestSession_Rcpt_UnknownRecipient(t *testing.T) {
	accounts := newStubAccountRepo()
	session := NewSession(newTestBackend(accounts, newStubEmailRepo()))

	err := session.Rcpt("nobody@example.com", nil)

	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)
	assert.Empty(t, session.recipients)
}

func TestSession_Rcpt_InactiveAccount(t *testing.T) {
	account := activeAccount(1, "user-1", "inbox@example.com")
	account.IsActive = false
	session := NewSession(newTestBackend(newStubAccountRepo(account), newStubEmailRepo()))

	err := session.Rcpt("inbox@example.com", nil)

	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)
	assert.Contains(t, smtpErr.Message, "not accepting")
}

func TestSession_Rcpt_MalformedAddress(t *testing.T) {
	session := NewSession(newTestBackend(newStubAccountRepo(), newStubEmailRepo()))

	err := session.Rcpt("not-an-address", nil)

	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)
}

// ==================== Data Tests ====================

func TestSession_Data_NoRecipients(t *testing.T) {
	session := NewSession(newTestBackend(newStubAccountRepo(), newStubEmailRepo()))

	err := session.Data(strings.NewReader("irrelevant"))

	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 503, smtpErr.Code)
}

func TestSession_Data_StoresEmailForRecipient(t *testing.T) {
	accounts := newStubAccountRepo(activeAccount(1, "user-1", "inbox@example.com"))
	emails := newStubEmailRepo()
	session := NewSession(newTestBackend(accounts, emails))

	require.NoError(t, session.Mail("sender@remote.com", nil))
	require.NoError(t, session.Rcpt("inbox@example.com", nil))

	message := `From: "Remote Sender" <sender@remote.com>
To: inbox@example.com
Subject: Quarterly Report
Message-Id: <report-42@remote.com>
Content-Type: text/plain

Please review the attached figures.`

	require.NoError(t, session.Data(strings.NewReader(message)))

	stored := emails.all()
	require.Len(t, stored, 1)
	email := stored[0]
	assert.Equal(t, "user-1", email.OwnerUserID)
	assert.Equal(t, "inbox@example.com", email.MailboxAddress)
	assert.Equal(t, "smtp", email.Provider)
	assert.Equal(t, "report-42@remote.com", email.ProviderMessageID)
	assert.Equal(t, "Quarterly Report", email.Subject)
	assert.Equal(t, "sender@remote.com", email.SenderEmail)
	assert.Equal(t, "Remote Sender", email.SenderName)
	assert.Contains(t, email.BodyText, "Please review")
	assert.False(t, email.ReceivedAt.IsZero())
}

func TestSession_Data_MultipleRecipients(t *testing.T) {
	accounts := newStubAccountRepo(
		activeAccount(1, "user-1", "alice@example.com"),
		activeAccount(2, "user-2", "bob@example.com"),
	)
	emails := newStubEmailRepo()
	session := NewSession(newTestBackend(accounts, emails))

	require.NoError(t, session.Mail("sender@remote.com", nil))
	require.NoError(t, session.Rcpt("alice@example.com", nil))
	require.NoError(t, session.Rcpt("bob@example.com", nil))

	message := `From: sender@remote.com
Subject: Team Update
Message-Id: <update-1@remote.com>
Content-Type: text/plain

Meeting moved to Thursday.`

	require.NoError(t, session.Data(strings.NewReader(message)))

	stored := emails.all()
	require.Len(t, stored, 2)
	assert.Equal(t, "user-1", stored[0].OwnerUserID)
	assert.Equal(t, "alice@example.com", stored[0].MailboxAddress)
	assert.Equal(t, "user-2", stored[1].OwnerUserID)
	assert.Equal(t, "bob@example.com", stored[1].MailboxAddress)
}

func TestSession_Data_GeneratesMessageID(t *testing.T) {
	accounts := newStubAccountRepo(activeAccount(1, "user-1", "inbox@example.com"))
	emails := newStubEmailRepo()
	session := NewSession(newTestBackend(accounts, emails))

	require.NoError(t, session.Mail("sender@remote.com", nil))
	require.NoError(t, session.Rcpt("inbox@example.com", nil))

	message := `From: sender@remote.com
Subject: No Message ID
Content-Type: text/plain

Body`

	require.NoError(t, session.Data(strings.NewReader(message)))

	stored := emails.all()
	require.Len(t, stored, 1)
	assert.True(t, strings.HasPrefix(stored[0].ProviderMessageID, "generated-"),
		"expected generated message id, got %q", stored[0].ProviderMessageID)
}

func TestSession_Data_RedeliveryDoesNotDuplicate(t *testing.T) {
	accounts := newStubAccountRepo(activeAccount(1, "user-1", "inbox@example.com"))
	emails := newStubEmailRepo()
	backend := newTestBackend(accounts, emails)

	message := `From: sender@remote.com
Subject: Delivered Twice
Message-Id: <dup-1@remote.com>
Content-Type: text/plain

Same message, two deliveries.`

	for i := 0; i < 2; i++ {
		session := NewSession(backend)
		require.NoError(t, session.Mail("sender@remote.com", nil))
		require.NoError(t, session.Rcpt("inbox@example.com", nil))
		require.NoError(t, session.Data(strings.NewReader(message)), "delivery %d", i)
	}

	assert.Len(t, emails.all(), 1)
}

func TestSession_Data_EnvelopeSenderFallback(t *testing.T) {
	accounts := newStubAccountRepo(activeAccount(1, "user-1", "inbox@example.com"))
	emails := newStubEmailRepo()
	session := NewSession(newTestBackend(accounts, emails))

	require.NoError(t, session.Mail("envelope@remote.com", nil))
	require.NoError(t, session.Rcpt("inbox@example.com", nil))

	// No From header, only envelope sender.
	message := fmt.Sprintf("Subject: %s\nContent-Type: text/plain\n\nBody", "Headerless")

	require.NoError(t, session.Data(strings.NewReader(message)))

	stored := emails.all()
	require.Len(t, stored, 1)
	assert.Equal(t, "envelope@remote.com", stored[0].SenderEmail)
}

// ==================== Session lifecycle ====================

func TestSession_Reset(t *testing.T) {
	accounts := newStubAccountRepo(activeAccount(1, "user-1", "inbox@example.com"))
	session := NewSession(newTestBackend(accounts, newStubEmailRepo()))

	require.NoError(t, session.Mail("sender@remote.com", nil))
	require.NoError(t, session.Rcpt("inbox@example.com", nil))

	session.Reset()

	assert.Empty(t, session.from)
	assert.Empty(t, session.recipients)
}

// ==================== normalizeAddress Tests ====================

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"plain address", "user@example.com", "user@example.com", false},
		{"angle brackets", "<user@example.com>", "user@example.com", false},
		{"uppercase lowered", "User@Example.COM", "user@example.com", false},
		{"surrounding whitespace", "  user@example.com  ", "user@example.com", false},
		{"missing domain", "user@", "", true},
		{"missing local part", "@example.com", "", true},
		{"no at sign", "userexample.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeAddress(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
