package handlers

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mailsense/mailsense-backend/internal/api/response"
	apperrors "github.com/mailsense/mailsense-backend/internal/errors"
	"github.com/mailsense/mailsense-backend/internal/repository"
	"github.com/mailsense/mailsense-backend/internal/services"
	"github.com/mailsense/mailsense-backend/internal/validator"
)

// EmailHandler handles email-related HTTP requests
type EmailHandler struct {
	emailRepo repository.EmailRepository
	enricher  *services.EnrichmentService
}

// NewEmailHandler creates a new EmailHandler
func NewEmailHandler(emailRepo repository.EmailRepository, enricher *services.EnrichmentService) *EmailHandler {
	return &EmailHandler{
		emailRepo: emailRepo,
		enricher:  enricher,
	}
}

// List handles GET /api/emails?user_id=...&limit=...&offset=...
func (h *EmailHandler) List(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if err := validator.ValidateUserID(userID); err != nil {
		return response.BadRequest(c, "invalid user_id")
	}

	limit := 0
	offset := 0
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil {
			offset = parsed
		}
	}
	limit, offset = validator.ValidatePagination(limit, offset)

	emails, total, err := h.emailRepo.ListByOwner(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return response.InternalError(c, "failed to list emails")
	}

	return response.Paginated(c, emails, total, limit, offset)
}

// Get handles GET /api/emails/:id
func (h *EmailHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid email ID")
	}

	email, err := h.emailRepo.GetByID(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "email not found")
		}
		return response.InternalError(c, "failed to get email")
	}

	return response.Success(c, email)
}

// Enrich handles POST /api/emails/:id/enrich?force=true
// The email is analyzed synchronously; the enriched result is returned.
func (h *EmailHandler) Enrich(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid email ID")
	}

	force := false
	if f := c.QueryParam("force"); f != "" {
		force, _ = strconv.ParseBool(f)
	}

	result, err := h.enricher.EnrichEmail(c.Request().Context(), uint(id), force)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound) || apperrors.IsNotFound(err):
			return response.NotFound(c, "email not found")
		case errors.Is(err, apperrors.ErrMissingIdentity):
			return response.BadRequest(c, "email is missing identity fields")
		default:
			if llmErr := apperrors.GetLLMError(err); llmErr != nil && llmErr.Throttled() {
				return response.TooManyRequests(c, "analysis provider throttled the request")
			}
			return response.InternalError(c, "enrichment failed")
		}
	}

	return response.Success(c, result)
}
