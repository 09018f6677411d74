package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/dto"
	"github.com/jsamuelsen/devflow-identity/internal/app"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
)

// UserHandler handles the user directory endpoints.
type UserHandler struct {
	service *app.DirectoryService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(service *app.DirectoryService) *UserHandler {
	return &UserHandler{service: service}
}

// List handles GET /api/v1/users.
func (h *UserHandler) List(c *gin.Context) error {
	users, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		return err
	}

	c.JSON(http.StatusOK, dto.OK(dto.FromUsers(users)))

	return nil
}

// Get handles GET /api/v1/users/:id.
func (h *UserHandler) Get(c *gin.Context) error {
	user, err := h.service.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		return err
	}

	c.JSON(http.StatusOK, dto.OK(dto.FromUser(user)))

	return nil
}

// Create handles POST /api/v1/users and responds 201 with the new user.
func (h *UserHandler) Create(c *gin.Context) error {
	var in domain.NewUser
	if err := dto.BindAndValidate(c, &in); err != nil {
		return err
	}

	user, err := h.service.CreateUser(c.Request.Context(), in)
	if err != nil {
		return err
	}

	c.JSON(http.StatusCreated, dto.OK(dto.FromUser(user)))

	return nil
}

// GetByEmail handles POST /api/v1/users/email.
func (h *UserHandler) GetByEmail(c *gin.Context) error {
	var in domain.EmailLookup
	if err := dto.BindAndValidate(c, &in); err != nil {
		return err
	}

	user, err := h.service.GetUserByEmail(c.Request.Context(), in.Email)
	if err != nil {
		return err
	}

	c.JSON(http.StatusOK, dto.OK(dto.FromUser(user)))

	return nil
}

// RegisterUserRoutes registers user routes on the given router group.
func (h *UserHandler) RegisterUserRoutes(rg *gin.RouterGroup, respond ErrorResponder) {
	users := rg.Group("/users")
	users.GET("", Wrap(h.List, respond))
	users.POST("", Wrap(h.Create, respond))
	users.POST("/email", Wrap(h.GetByEmail, respond))
	users.GET("/:id", Wrap(h.Get, respond))
}
