package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mailsense/mailsense-backend/internal/metrics"
	"github.com/mailsense/mailsense-backend/internal/models"
	"github.com/mailsense/mailsense-backend/internal/repository"
)

// EnrichmentVersion tags every result so consumers can tell which prompt
// generation produced it.
const EnrichmentVersion = "2.1"

const defaultSummary = "No summary available"

// bodyLimit caps how much email body goes into a prompt.
const bodyLimit = 4000

// BatchAnalyzer turns raw emails into enrichment results via the analysis
// provider. Multi-email analysis shares one provider call per chunk; results
// always match the input in length and order.
type BatchAnalyzer struct {
	llm        LLMCaller
	categories repository.CategoryRepository
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// overridable in tests
	now func() time.Time
}

// NewBatchAnalyzer creates a new BatchAnalyzer
func NewBatchAnalyzer(llm LLMCaller, categories repository.CategoryRepository, m *metrics.Metrics, logger *slog.Logger) *BatchAnalyzer {
	return &BatchAnalyzer{
		llm:        llm,
		categories: categories,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// analysisItem is the per-email shape requested from the model.
type analysisItem struct {
	Summary     any `json:"summary"`
	Category    any `json:"category"`
	Priority    any `json:"priority"`
	Sentiment   any `json:"sentiment"`
	ActionItems any `json:"action_items"`
}

// AnalyzeOne analyzes a single email.
func (a *BatchAnalyzer) AnalyzeOne(ctx context.Context, email *models.Email) (*models.EnrichmentResult, error) {
	categoryNames, err := a.categories.ListNamesByOwner(ctx, email.OwnerUserID)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}

	raw, err := a.llm.Call(ctx, a.singlePrompt(email, categoryNames))
	if err != nil {
		return nil, err
	}

	var item analysisItem
	repaired, parseErr := decodeModelJSON(raw, &item)
	a.noteRepair(repaired)
	if parseErr != nil {
		return a.errorResult("analysis response was not valid JSON"), nil
	}

	return a.validate(&item, categoryNames), nil
}

// AnalyzeMany analyzes a chunk of emails in a single provider call. The
// returned slice always has the same length and order as emails; individually
// malformed entries become error-tagged results instead of failing the chunk.
// A transport failure (after the client's own retries) is returned as an
// error and covers every item.
func (a *BatchAnalyzer) AnalyzeMany(ctx context.Context, emails []*models.Email) ([]*models.EnrichmentResult, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	if len(emails) == 1 {
		result, err := a.AnalyzeOne(ctx, emails[0])
		if err != nil {
			return nil, err
		}
		return []*models.EnrichmentResult{result}, nil
	}

	// The chunk shares the first owner's category set; the queue never
	// mixes owners within a chunk.
	categoryNames, err := a.categories.ListNamesByOwner(ctx, emails[0].OwnerUserID)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}

	raw, err := a.llm.Call(ctx, a.batchPrompt(emails, categoryNames))
	if err != nil {
		return nil, err
	}

	var items []*analysisItem
	repaired, parseErr := decodeModelJSON(raw, &items)
	a.noteRepair(repaired)
	if parseErr != nil {
		results := make([]*models.EnrichmentResult, len(emails))
		for i := range results {
			results[i] = a.errorResult("analysis response was not valid JSON")
		}
		return results, nil
	}

	results := make([]*models.EnrichmentResult, len(emails))
	for i := range emails {
		if i >= len(items) || items[i] == nil {
			results[i] = a.errorResult("analysis response missing entry for email")
			continue
		}
		results[i] = a.validate(items[i], categoryNames)
	}
	return results, nil
}

func (a *BatchAnalyzer) noteRepair(repaired bool) {
	if !repaired {
		return
	}
	if a.metrics != nil {
		a.metrics.JSONRepairs.Inc()
	}
	if a.logger != nil {
		// Frequent repairs mean the prompt is drifting; watch this.
		a.logger.Warn("analysis response needed JSON repair")
	}
}

// validate normalizes a parsed item into a canonical result. Summary and
// category degrade gracefully; priority and sentiment are strict because
// they drive downstream filtering, and silently defaulting them would
// corrupt analytics.
func (a *BatchAnalyzer) validate(item *analysisItem, categoryNames []string) *models.EnrichmentResult {
	result := &models.EnrichmentResult{
		EnrichedAt:  a.now().UTC(),
		Version:     EnrichmentVersion,
		ActionItems: []string{},
	}

	if s, ok := item.Summary.(string); ok && strings.TrimSpace(s) != "" {
		result.Summary = strings.TrimSpace(s)
	} else {
		result.Summary = defaultSummary
	}

	result.Category = models.FallbackCategory
	if c, ok := item.Category.(string); ok {
		for _, name := range categoryNames {
			if strings.EqualFold(strings.TrimSpace(c), name) {
				result.Category = name
				break
			}
		}
	}

	priority, ok := item.Priority.(string)
	if !ok || !models.ValidPriority(strings.ToLower(strings.TrimSpace(priority))) {
		return a.errorResult(fmt.Sprintf("invalid priority value %q", item.Priority))
	}
	result.Priority = strings.ToLower(strings.TrimSpace(priority))

	sentiment, ok := item.Sentiment.(string)
	if !ok || !models.ValidSentiment(strings.ToLower(strings.TrimSpace(sentiment))) {
		return a.errorResult(fmt.Sprintf("invalid sentiment value %q", item.Sentiment))
	}
	result.Sentiment = strings.ToLower(strings.TrimSpace(sentiment))

	if rawItems, ok := item.ActionItems.([]any); ok {
		for _, entry := range rawItems {
			if s, ok := entry.(string); ok && strings.TrimSpace(s) != "" {
				result.ActionItems = append(result.ActionItems, strings.TrimSpace(s))
			}
		}
	}

	return result
}

func (a *BatchAnalyzer) errorResult(message string) *models.EnrichmentResult {
	return &models.EnrichmentResult{
		EnrichedAt: a.now().UTC(),
		Version:    EnrichmentVersion,
		Error:      message,
	}
}

func (a *BatchAnalyzer) singlePrompt(email *models.Email, categoryNames []string) string {
	var b strings.Builder
	b.WriteString("Analyze the following email and respond with a single JSON object, no prose before or after it.\n")
	a.writeSchema(&b, categoryNames)
	b.WriteString("\nEmail:\n")
	a.writeEmail(&b, email)
	return b.String()
}

func (a *BatchAnalyzer) batchPrompt(emails []*models.Email, categoryNames []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %d emails and respond with a JSON array of exactly %d objects, one per email in the same order. No prose before or after the array.\n", len(emails), len(emails))
	a.writeSchema(&b, categoryNames)
	for i, email := range emails {
		fmt.Fprintf(&b, "\nEmail %d:\n", i+1)
		a.writeEmail(&b, email)
	}
	return b.String()
}

func (a *BatchAnalyzer) writeSchema(b *strings.Builder, categoryNames []string) {
	b.WriteString("Each object must have exactly these fields:\n")
	b.WriteString(`  "summary": one or two sentences` + "\n")
	fmt.Fprintf(b, "  %q: one of %s\n", "category", strings.Join(categoryNames, ", "))
	b.WriteString(`  "priority": one of urgent, high, medium, low` + "\n")
	b.WriteString(`  "sentiment": one of positive, negative, neutral` + "\n")
	b.WriteString(`  "action_items": array of short strings, empty if none` + "\n")
}

func (a *BatchAnalyzer) writeEmail(b *strings.Builder, email *models.Email) {
	fmt.Fprintf(b, "Subject: %s\n", email.Subject)
	fmt.Fprintf(b, "From: %s <%s>\n", email.SenderName, email.SenderEmail)
	if email.ToAddresses != "" {
		fmt.Fprintf(b, "To: %s\n", email.ToAddresses)
	}
	body := email.BodyText
	if body == "" {
		body = email.Snippet
	}
	if len(body) > bodyLimit {
		// back off to a rune start so the cut never leaves a partial
		// multi-byte sequence in the prompt
		cut := bodyLimit
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	fmt.Fprintf(b, "Body:\n%s\n", body)
}
