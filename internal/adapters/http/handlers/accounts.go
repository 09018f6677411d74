package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/dto"
	"github.com/jsamuelsen/devflow-identity/internal/app"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
)

// AccountHandler handles the linked account endpoints.
type AccountHandler struct {
	service *app.DirectoryService
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(service *app.DirectoryService) *AccountHandler {
	return &AccountHandler{service: service}
}

// List handles GET /api/v1/accounts.
func (h *AccountHandler) List(c *gin.Context) error {
	accounts, err := h.service.ListAccounts(c.Request.Context())
	if err != nil {
		return err
	}

	c.JSON(http.StatusOK, dto.OK(dto.FromAccounts(accounts)))

	return nil
}

// Get handles GET /api/v1/accounts/:id.
func (h *AccountHandler) Get(c *gin.Context) error {
	account, err := h.service.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}

	c.JSON(http.StatusOK, dto.OK(dto.FromAccount(account)))

	return nil
}

// GetByProvider handles POST /api/v1/accounts/provider.
// The lookup matches providerAccountId only.
func (h *AccountHandler) GetByProvider(c *gin.Context) error {
	var in domain.ProviderAccountLookup
	if err := dto.BindAndValidate(c, &in); err != nil {
		return err
	}

	account, err := h.service.GetAccountByProvider(c.Request.Context(), in.ProviderAccountID)
	if err != nil {
		return err
	}

	c.JSON(http.StatusOK, dto.OK(dto.FromAccount(account)))

	return nil
}

// RegisterAccountRoutes registers account routes on the given router group.
func (h *AccountHandler) RegisterAccountRoutes(rg *gin.RouterGroup, respond ErrorResponder) {
	accounts := rg.Group("/accounts")
	accounts.GET("", Wrap(h.List, respond))
	accounts.POST("/provider", Wrap(h.GetByProvider, respond))
	accounts.GET("/:id", Wrap(h.Get, respond))
}
