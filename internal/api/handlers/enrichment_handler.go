package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/mailsense/mailsense-backend/internal/api/response"
	"github.com/mailsense/mailsense-backend/internal/services"
)

// EnrichmentHandler exposes the background enrichment queue over HTTP
type EnrichmentHandler struct {
	enricher *services.EnrichmentService
}

// NewEnrichmentHandler creates a new EnrichmentHandler
func NewEnrichmentHandler(enricher *services.EnrichmentService) *EnrichmentHandler {
	return &EnrichmentHandler{enricher: enricher}
}

// BatchEnrichRequest is the body for POST /api/enrichment/batch
type BatchEnrichRequest struct {
	EmailIDs []uint `json:"email_ids"`
	Force    bool   `json:"force"`
}

// BatchEnrichResponse reports how many emails were admitted to the queue
type BatchEnrichResponse struct {
	Requested int `json:"requested"`
	Queued    int `json:"queued"`
}

// Batch handles POST /api/enrichment/batch. Emails are queued for background
// enrichment; unknown IDs and already-enriched emails are skipped.
func (h *EnrichmentHandler) Batch(c echo.Context) error {
	var req BatchEnrichRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if len(req.EmailIDs) == 0 {
		return response.BadRequest(c, "email_ids is required")
	}

	queued, err := h.enricher.EnrichBatchByIDs(c.Request().Context(), req.EmailIDs, req.Force)
	if err != nil {
		return response.InternalError(c, "failed to queue emails")
	}

	return response.Accepted(c, BatchEnrichResponse{
		Requested: len(req.EmailIDs),
		Queued:    queued,
	})
}

// QueueStatusResponse describes the current state of the enrichment queue
type QueueStatusResponse struct {
	Depth      int  `json:"depth"`
	Processing bool `json:"processing"`
}

// Status handles GET /api/enrichment/status
func (h *EnrichmentHandler) Status(c echo.Context) error {
	depth, processing := h.enricher.QueueStatus()
	return response.Success(c, QueueStatusResponse{
		Depth:      depth,
		Processing: processing,
	})
}

// SweepResponse reports the result of a manually triggered backlog sweep
type SweepResponse struct {
	Queued int `json:"queued"`
}

// Sweep handles POST /api/enrichment/sweep. It runs the same backlog pass the
// scheduler runs periodically.
func (h *EnrichmentHandler) Sweep(c echo.Context) error {
	queued, err := h.enricher.SweepUnprocessed(c.Request().Context(), 100)
	if err != nil {
		return response.InternalError(c, "sweep failed")
	}
	return response.Accepted(c, SweepResponse{Queued: queued})
}
