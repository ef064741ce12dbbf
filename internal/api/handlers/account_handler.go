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

// AccountHandler handles mailbox account HTTP requests
type AccountHandler struct {
	accountRepo repository.AccountRepository
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accountRepo repository.AccountRepository) *AccountHandler {
	return &AccountHandler{accountRepo: accountRepo}
}

// CreateAccountRequest is the body for POST /api/accounts
type CreateAccountRequest struct {
	UserID      string `json:"user_id"`
	Address     string `json:"address"`
	Provider    string `json:"provider"`
	DisplayName string `json:"display_name"`
}

// Create handles POST /api/accounts
func (h *AccountHandler) Create(c echo.Context) error {
	var req CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if err := validator.ValidateUserID(req.UserID); err != nil {
		return response.BadRequest(c, "invalid user_id")
	}
	if err := validator.ValidateEmail(req.Address); err != nil {
		return response.BadRequest(c, "invalid address")
	}
	provider := validator.SanitizeString(req.Provider, 32)
	if provider == "" {
		provider = "smtp"
	}

	account := &models.MailboxAccount{
		OwnerUserID: strings.TrimSpace(req.UserID),
		Address:     strings.ToLower(strings.TrimSpace(req.Address)),
		Provider:    provider,
		DisplayName: validator.SanitizeString(req.DisplayName, 255),
		IsActive:    true,
	}
	if err := h.accountRepo.Create(c.Request().Context(), account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return response.Conflict(c, "address already registered")
		}
		return response.InternalError(c, "failed to create account")
	}

	return response.Created(c, account)
}

// List handles GET /api/accounts?user_id=...
func (h *AccountHandler) List(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if err := validator.ValidateUserID(userID); err != nil {
		return response.BadRequest(c, "invalid user_id")
	}

	accounts, err := h.accountRepo.ListByOwner(c.Request().Context(), userID)
	if err != nil {
		return response.InternalError(c, "failed to list accounts")
	}

	return response.Success(c, accounts)
}

// SetActiveRequest is the body for PATCH /api/accounts/:id/active
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive handles PATCH /api/accounts/:id/active. Deactivated accounts stop
// accepting SMTP deliveries but keep their stored mail.
func (h *AccountHandler) SetActive(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid account ID")
	}

	var req SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	if err := h.accountRepo.SetActive(c.Request().Context(), uint(id), req.Active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return response.NotFound(c, "account not found")
		}
		return response.InternalError(c, "failed to update account")
	}

	return response.SuccessWithMessage(c, nil, "account updated")
}
