package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mailsense/mailsense-backend/internal/metrics"
	"github.com/mailsense/mailsense-backend/internal/models"
	"github.com/mailsense/mailsense-backend/internal/repository"
	"github.com/mailsense/mailsense-backend/internal/services"
)

// newTestContext builds an echo context for a request with an optional JSON body.
func newTestContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmailRepo is an in-memory EmailRepository.
type fakeEmailRepo struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*models.Email
}

func newFakeEmailRepo(emails ...*models.Email) *fakeEmailRepo {
	r := &fakeEmailRepo{byID: make(map[uint]*models.Email)}
	for _, e := range emails {
		if e.ID == 0 {
			r.nextID++
			e.ID = r.nextID
		} else if e.ID > r.nextID {
			r.nextID = e.ID
		}
		copied := *e
		r.byID[e.ID] = &copied
	}
	return r
}

func (r *fakeEmailRepo) Create(ctx context.Context, email *models.Email) error {
	return r.Upsert(ctx, email)
}

func (r *fakeEmailRepo) Upsert(ctx context.Context, email *models.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.MailboxAddress == email.MailboxAddress && existing.ProviderMessageID == email.ProviderMessageID {
			copied := *email
			copied.ID = existing.ID
			r.byID[existing.ID] = &copied
			return nil
		}
	}
	r.nextID++
	copied := *email
	copied.ID = r.nextID
	r.byID[copied.ID] = &copied
	return nil
}

func (r *fakeEmailRepo) GetByID(ctx context.Context, id uint) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (r *fakeEmailRepo) GetByIdentity(ctx context.Context, mailboxAddress, providerMessageID string) (*models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byID {
		if e.MailboxAddress == mailboxAddress && e.ProviderMessageID == providerMessageID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeEmailRepo) ListByOwner(ctx context.Context, ownerUserID string, limit, offset int) ([]models.EmailListItem, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []models.EmailListItem
	for _, e := range r.byID {
		if e.OwnerUserID != ownerUserID {
			continue
		}
		items = append(items, models.EmailListItem{
			ID:             e.ID,
			OwnerUserID:    e.OwnerUserID,
			MailboxAddress: e.MailboxAddress,
			SenderEmail:    e.SenderEmail,
			Subject:        e.Subject,
			IsProcessed:    e.IsProcessed,
			ReceivedAt:     e.ReceivedAt,
		})
	}
	total := int64(len(items))
	if offset > len(items) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], total, nil
}

func (r *fakeEmailRepo) ListUnprocessed(ctx context.Context, limit int) ([]models.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Email
	for _, e := range r.byID {
		if !e.IsProcessed && e.AIMeta == nil {
			out = append(out, *e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeEmailRepo) SaveEnrichment(ctx context.Context, id uint, result *models.EnrichmentResult, processed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.AIMeta = result
	e.IsProcessed = processed
	return nil
}

func (r *fakeEmailRepo) ClearEnrichment(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.AIMeta = nil
	e.IsProcessed = false
	return nil
}

// fakeCategoryRepo is an in-memory CategoryRepository.
type fakeCategoryRepo struct {
	mu         sync.Mutex
	nextID     uint
	categories map[uint]*models.Category
}

func newFakeCategoryRepo() *fakeCategoryRepo {
	return &fakeCategoryRepo{categories: make(map[uint]*models.Category)}
}

func (r *fakeCategoryRepo) Create(ctx context.Context, category *models.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.categories {
		if existing.OwnerUserID == category.OwnerUserID && existing.Name == category.Name {
			return repository.ErrDuplicateEntry
		}
	}
	r.nextID++
	category.ID = r.nextID
	copied := *category
	r.categories[category.ID] = &copied
	return nil
}

func (r *fakeCategoryRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Category
	for _, c := range r.categories {
		if c.OwnerUserID == ownerUserID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeCategoryRepo) ListNamesByOwner(ctx context.Context, ownerUserID string) ([]string, error) {
	categories, _ := r.ListByOwner(ctx, ownerUserID)
	if len(categories) == 0 {
		return append([]string(nil), models.DefaultCategoryNames...), nil
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names, nil
}

func (r *fakeCategoryRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.categories, id)
	return nil
}

func (r *fakeCategoryRepo) SeedDefaults(ctx context.Context, ownerUserID string) error {
	existing, _ := r.ListByOwner(ctx, ownerUserID)
	if len(existing) > 0 {
		return nil
	}
	for _, name := range models.DefaultCategoryNames {
		_ = r.Create(ctx, &models.Category{OwnerUserID: ownerUserID, Name: name})
	}
	return nil
}

// fakeAccountRepo is an in-memory AccountRepository.
type fakeAccountRepo struct {
	mu       sync.Mutex
	nextID   uint
	accounts map[string]*models.MailboxAccount
}

func newFakeAccountRepo(accounts ...*models.MailboxAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: make(map[string]*models.MailboxAccount)}
	for _, a := range accounts {
		if a.ID == 0 {
			r.nextID++
			a.ID = r.nextID
		} else if a.ID > r.nextID {
			r.nextID = a.ID
		}
		r.accounts[strings.ToLower(a.Address)] = a
	}
	return r
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *models.MailboxAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(account.Address)
	if _, ok := r.accounts[key]; ok {
		return repository.ErrDuplicateEntry
	}
	r.nextID++
	account.ID = r.nextID
	copied := *account
	r.accounts[key] = &copied
	return nil
}

func (r *fakeAccountRepo) GetByAddress(ctx context.Context, address string) (*models.MailboxAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[strings.ToLower(strings.TrimSpace(address))]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *fakeAccountRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]models.MailboxAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.MailboxAccount
	for _, a := range r.accounts {
		if a.OwnerUserID == ownerUserID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) SetActive(ctx context.Context, id uint, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ID == id {
			a.IsActive = active
			return nil
		}
	}
	return repository.ErrNotFound
}

// cannedAnalyzer returns a fixed successful result for every email.
type cannedAnalyzer struct{}

func (cannedAnalyzer) AnalyzeOne(ctx context.Context, email *models.Email) (*models.EnrichmentResult, error) {
	return &models.EnrichmentResult{
		Summary:    "Short meeting recap",
		Category:   "Work",
		Priority:   models.PriorityMedium,
		Sentiment:  models.SentimentNeutral,
		EnrichedAt: time.Now().UTC(),
		Version:    "v1",
	}, nil
}

func (a cannedAnalyzer) AnalyzeMany(ctx context.Context, emails []*models.Email) ([]*models.EnrichmentResult, error) {
	results := make([]*models.EnrichmentResult, len(emails))
	for i := range emails {
		results[i], _ = a.AnalyzeOne(ctx, emails[i])
	}
	return results, nil
}

// newTestEnricher assembles a real EnrichmentService over in-memory fakes.
func newTestEnricher(emailRepo *fakeEmailRepo) *services.EnrichmentService {
	logger := quietLogger()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	broadcaster := services.NewStatusBroadcaster(nil, m, logger)
	queue := services.NewEnrichmentQueue(services.EnrichmentQueueConfig{
		BatchSize: 10,
		ChunkSize: 5,
	}, cannedAnalyzer{}, emailRepo, broadcaster, m, logger)
	return services.NewEnrichmentService(emailRepo, cannedAnalyzer{}, queue, broadcaster, logger)
}
