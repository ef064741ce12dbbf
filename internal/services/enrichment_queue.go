package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/mailsense/mailsense-backend/internal/errors"
	"github.com/mailsense/mailsense-backend/internal/metrics"
	"github.com/mailsense/mailsense-backend/internal/models"
	"github.com/mailsense/mailsense-backend/internal/repository"
)

// ChunkAnalyzer is the analysis boundary the queue depends on.
type ChunkAnalyzer interface {
	AnalyzeOne(ctx context.Context, email *models.Email) (*models.EnrichmentResult, error)
	AnalyzeMany(ctx context.Context, emails []*models.Email) ([]*models.EnrichmentResult, error)
}

// EnrichmentQueueConfig configures an EnrichmentQueue
type EnrichmentQueueConfig struct {
	// BatchSize items are dequeued per drain pass, sub-split into provider
	// calls of ChunkSize.
	BatchSize int
	ChunkSize int

	// InterChunkDelay spaces provider calls within a pass. The token budget
	// already gates per-call cost, but providers also impose wall-clock
	// request-count ceilings that a token budget alone does not model.
	InterChunkDelay time.Duration

	// InterBatchDelay spaces drain passes while the queue stays non-empty.
	InterBatchDelay time.Duration
}

// queueItem wraps an email waiting for enrichment. Lives only in process
// memory: created on enqueue, gone on terminal success or failure.
type queueItem struct {
	email    *models.Email
	attempts int
}

// EnrichmentQueue is the in-memory FIFO work queue feeding the analyzer.
// A single drain goroutine runs at a time; enqueues during a drain are
// picked up by the running loop.
type EnrichmentQueue struct {
	cfg         EnrichmentQueueConfig
	analyzer    ChunkAnalyzer
	emails      repository.EmailRepository
	broadcaster *StatusBroadcaster
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu         sync.Mutex
	items      []*queueItem
	inflight   map[string]bool
	processing bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// overridable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEnrichmentQueue creates a new EnrichmentQueue
func NewEnrichmentQueue(cfg EnrichmentQueueConfig, analyzer ChunkAnalyzer, emails repository.EmailRepository, broadcaster *StatusBroadcaster, m *metrics.Metrics, logger *slog.Logger) *EnrichmentQueue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EnrichmentQueue{
		cfg:         cfg,
		analyzer:    analyzer,
		emails:      emails,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     m,
		inflight:    make(map[string]bool),
		baseCtx:     ctx,
		cancel:      cancel,
		sleep:       sleepContext,
	}
}

// Enqueue admits emails into the queue and starts a drain loop if none is
// running. Returns the number of items admitted. Fire-and-forget: the actual
// work happens on the drain goroutine.
func (q *EnrichmentQueue) Enqueue(ctx context.Context, emails []*models.Email, force bool) int {
	admitted := 0
	for _, email := range emails {
		if err := q.admit(ctx, email, force); err != nil {
			if q.metrics != nil {
				q.metrics.ItemsSkipped.Inc()
			}
			if q.logger != nil {
				q.logger.Debug("email not admitted to enrichment queue",
					slog.Uint64("email_id", uint64(email.ID)),
					slog.Any("reason", err))
			}
			continue
		}
		admitted++
	}

	if admitted > 0 {
		q.startDrain()
	}
	return admitted
}

// admit applies the admission filter and appends the email on success.
func (q *EnrichmentQueue) admit(ctx context.Context, email *models.Email, force bool) error {
	if email == nil || email.ID == 0 || email.MailboxAddress == "" || email.OwnerUserID == "" {
		return apperrors.ErrMissingIdentity
	}

	// The stored record decides idempotency, not whatever copy the caller
	// holds.
	stored, err := q.emails.GetByID(ctx, email.ID)
	if err != nil {
		return fmt.Errorf("loading stored record: %w", err)
	}
	if stored.Enriched() && !force {
		return apperrors.ErrAlreadyEnriched
	}
	if force && stored.AIMeta != nil {
		if err := q.emails.ClearEnrichment(ctx, stored.ID); err != nil {
			return fmt.Errorf("clearing previous enrichment: %w", err)
		}
		stored.AIMeta = nil
		stored.IsProcessed = false
	}

	q.mu.Lock()
	if q.inflight[stored.Identity()] {
		q.mu.Unlock()
		return fmt.Errorf("already queued: %s", stored.Identity())
	}
	q.inflight[stored.Identity()] = true
	q.items = append(q.items, &queueItem{email: stored})
	depth := len(q.items)
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.ItemsEnqueued.Inc()
		q.metrics.QueueDepth.Set(float64(depth))
	}
	q.broadcaster.NotifyEmail(stored, EventQueued, nil, "")
	return nil
}

func (q *EnrichmentQueue) startDrain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.processing || len(q.items) == 0 {
		return
	}
	q.processing = true
	q.wg.Add(1)
	go q.drain()
}

// Len returns the number of items waiting in the queue.
func (q *EnrichmentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsProcessing reports whether a drain loop is currently running.
func (q *EnrichmentQueue) IsProcessing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// Stop cancels the drain loop and waits for it to finish. Queued items stay
// in storage as unprocessed and are re-admitted by the next sweep.
func (q *EnrichmentQueue) Stop() {
	q.cancel()
	q.wg.Wait()
}

// Wait blocks until the current drain loop finishes. Test helper.
func (q *EnrichmentQueue) Wait() {
	q.wg.Wait()
}

func (q *EnrichmentQueue) dequeue(n int) []*queueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := q.items[:n]
	q.items = q.items[n:]
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.items)))
	}
	return batch
}

// drain is the single long-lived background loop. It ends when the queue is
// empty or the queue is stopped; a later enqueue starts a fresh one.
func (q *EnrichmentQueue) drain() {
	defer q.wg.Done()

	ctx := q.baseCtx
	for {
		if ctx.Err() != nil {
			q.exit()
			return
		}

		batch := q.dequeue(q.cfg.BatchSize)
		if len(batch) == 0 {
			if q.tryExit() {
				return
			}
			continue
		}

		chunks := q.splitChunks(batch)
		for i, chunk := range chunks {
			q.processChunk(ctx, chunk)
			if i < len(chunks)-1 && q.cfg.InterChunkDelay > 0 {
				if err := q.sleep(ctx, q.cfg.InterChunkDelay); err != nil {
					q.exit()
					return
				}
			}
		}

		if q.tryExit() {
			return
		}
		if q.cfg.InterBatchDelay > 0 {
			if err := q.sleep(ctx, q.cfg.InterBatchDelay); err != nil {
				q.exit()
				return
			}
		}
	}
}

// tryExit clears the running flag only if no work remains. The re-check and
// the flip share one critical section: a concurrent Enqueue either appends
// before the check (this loop keeps draining) or after the flip (startDrain
// sees an idle queue and launches a new loop). An item can never land in the
// gap between the two.
func (q *EnrichmentQueue) tryExit() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		return false
	}
	q.processing = false
	return true
}

// exit unconditionally clears the running flag. Only used on the stop paths,
// where leftover items are deliberately left for the next sweep.
func (q *EnrichmentQueue) exit() {
	q.mu.Lock()
	q.processing = false
	q.mu.Unlock()
}

// splitChunks splits a batch into provider-call chunks of at most ChunkSize,
// additionally breaking on owner changes so a chunk always shares one
// category set.
func (q *EnrichmentQueue) splitChunks(batch []*queueItem) [][]*queueItem {
	var chunks [][]*queueItem
	var current []*queueItem
	for _, item := range batch {
		if len(current) > 0 &&
			(len(current) >= q.cfg.ChunkSize || current[0].email.OwnerUserID != item.email.OwnerUserID) {
			chunks = append(chunks, current)
			current = nil
		}
		current = append(current, item)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// processChunk runs one provider call for the chunk and persists every item.
// A failure on one item never aborts its siblings; a failed chunk never
// aborts the drain loop.
func (q *EnrichmentQueue) processChunk(ctx context.Context, chunk []*queueItem) {
	emails := make([]*models.Email, len(chunk))
	for i, item := range chunk {
		item.attempts++
		emails[i] = item.email
		q.broadcaster.NotifyEmail(item.email, EventAnalyzing, nil, "")
	}

	results, err := q.analyzer.AnalyzeMany(ctx, emails)
	if err != nil {
		if q.logger != nil {
			q.logger.Error("chunk analysis failed",
				slog.Int("chunk_size", len(chunk)),
				slog.Any("error", err))
		}
		// Terminal for this attempt: the client already exhausted its own
		// retries. Every item gets a durable failure record.
		results = make([]*models.EnrichmentResult, len(chunk))
		for i := range results {
			results[i] = &models.EnrichmentResult{
				EnrichedAt: time.Now().UTC(),
				Version:    EnrichmentVersion,
				Error:      err.Error(),
			}
		}
	}

	for i, item := range chunk {
		q.finishItem(ctx, item, results[i])
	}
}

// finishItem persists one item's terminal state and emits its terminal
// event. Failure must still write a record so the item reads as "tried and
// failed" rather than "never attempted".
func (q *EnrichmentQueue) finishItem(ctx context.Context, item *queueItem, result *models.EnrichmentResult) {
	defer q.release(item.email.Identity())

	succeeded := result.Error == ""
	if err := q.emails.SaveEnrichment(ctx, item.email.ID, result, succeeded); err != nil {
		if q.logger != nil {
			q.logger.Error("failed to persist enrichment result",
				slog.Uint64("email_id", uint64(item.email.ID)),
				slog.Any("error", err))
		}
		q.broadcaster.NotifyEmail(item.email, EventError, nil, "failed to save enrichment result")
		if q.metrics != nil {
			q.metrics.ItemsFailed.Inc()
		}
		return
	}

	if succeeded {
		q.broadcaster.NotifyEmail(item.email, EventCompleted, result, "")
		if q.metrics != nil {
			q.metrics.ItemsCompleted.Inc()
		}
		return
	}

	q.broadcaster.NotifyEmail(item.email, EventError, nil, result.Error)
	if q.metrics != nil {
		q.metrics.ItemsFailed.Inc()
	}
	if q.logger != nil {
		q.logger.Warn("email enrichment failed",
			slog.Uint64("email_id", uint64(item.email.ID)),
			slog.Int("attempts", item.attempts),
			slog.String("error", result.Error))
	}
}

func (q *EnrichmentQueue) release(identity string) {
	q.mu.Lock()
	delete(q.inflight, identity)
	q.mu.Unlock()
}
