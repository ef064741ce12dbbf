package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mailsense/mailsense-backend/internal/api/response"
	"github.com/mailsense/mailsense-backend/internal/models"
	"github.com/mailsense/mailsense-backend/internal/repository"
	"github.com/mailsense/mailsense-backend/internal/validator"
)

// CategoryHandler handles category-related HTTP requests
type CategoryHandler struct {
	categoryRepo repository.CategoryRepository
}

// NewCategoryHandler creates a new CategoryHandler
func NewCategoryHandler(categoryRepo repository.CategoryRepository) *CategoryHandler {
	return &CategoryHandler{categoryRepo: categoryRepo}
}

// CreateCategoryRequest is the body for POST /api/categories
type CreateCategoryRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// Create handles POST /api/categories
func (h *CategoryHandler) Create(c echo.Context) error {
	var req CreateCategoryRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if err := validator.ValidateUserID(req.UserID); err != nil {
		return response.BadRequest(c, "invalid user_id")
	}
	name := validator.SanitizeString(req.Name, 128)
	if name == "" {
		return response.BadRequest(c, "name is required")
	}

	category := &models.Category{
		OwnerUserID: strings.TrimSpace(req.UserID),
		Name:        name,
	}
	if err := h.categoryRepo.Create(c.Request().Context(), category); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return response.Conflict(c, "category already exists")
		}
		return response.InternalError(c, "failed to create category")
	}

	return response.Created(c, category)
}

// List handles GET /api/categories?user_id=...
func (h *CategoryHandler) List(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if err := validator.ValidateUserID(userID); err != nil {
		return response.BadRequest(c, "invalid user_id")
	}

	categories, err := h.categoryRepo.ListByOwner(c.Request().Context(), userID)
	if err != nil {
		return response.InternalError(c, "failed to list categories")
	}

	return response.Success(c, categories)
}

// Delete handles DELETE /api/categories/:id
func (h *CategoryHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid category ID")
	}

	if err := h.categoryRepo.Delete(c.Request().Context(), uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "category not found")
		}
		return response.InternalError(c, "failed to delete category")
	}

	return response.NoContent(c)
}

// SeedDefaultsRequest is the body for POST /api/categories/seed
type SeedDefaultsRequest struct {
	UserID string `json:"user_id"`
}

// SeedDefaults handles POST /api/categories/seed. Owners that already have
// categories are left untouched.
func (h *CategoryHandler) SeedDefaults(c echo.Context) error {
	var req SeedDefaultsRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if err := validator.ValidateUserID(req.UserID); err != nil {
		return response.BadRequest(c, "invalid user_id")
	}

	if err := h.categoryRepo.SeedDefaults(c.Request().Context(), strings.TrimSpace(req.UserID)); err != nil {
		return response.InternalError(c, "failed to seed categories")
	}

	categories, err := h.categoryRepo.ListByOwner(c.Request().Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		return response.InternalError(c, "failed to list categories")
	}
	return response.Success(c, categories)
}
