package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/dto"
	"github.com/jsamuelsen/devflow-identity/internal/app"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
)

// AuthHandler handles the OAuth sign-in endpoint.
type AuthHandler struct {
	service *app.IdentityService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(service *app.IdentityService) *AuthHandler {
	return &AuthHandler{service: service}
}

// SignInWithOAuth handles POST /api/v1/auth/signin-with-oauth.
// Reconciles the provider identity with the local user and account and
// responds with {"success": true}.
func (h *AuthHandler) SignInWithOAuth(c *gin.Context) error {
	var in domain.OAuthSignIn
	if err := dto.BindAndValidate(c, &in); err != nil {
		return err
	}

	if err := h.service.SignInWithOAuth(c.Request.Context(), in); err != nil {
		return err
	}

	c.JSON(http.StatusOK, dto.OK(nil))

	return nil
}

// RegisterAuthRoutes registers auth routes on the given router group.
func (h *AuthHandler) RegisterAuthRoutes(rg *gin.RouterGroup, respond ErrorResponder) {
	auth := rg.Group("/auth")
	auth.POST("/signin-with-oauth", Wrap(h.SignInWithOAuth, respond))
}
