package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/shortsmith/api/internal/auth"
	"github.com/shortsmith/api/internal/middleware"
)

// AuthHandler answers ForwardAuth checks from the API gateway
type AuthHandler struct {
	authenticator *auth.Authenticator
}

func NewAuthHandler(authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{authenticator: authenticator}
}

// Verify handles GET /auth/verify. A valid token gets 200 with the X-User-*
// headers the gateway forwards upstream; anything else gets 401.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	principal, err := h.authenticator.Authenticate(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set(middleware.HeaderUserID, principal.UserID)
	c.Set(middleware.HeaderUserEmail, principal.Email)
	if principal.Name != "" {
		c.Set(middleware.HeaderUserName, principal.Name)
	}
	return c.SendStatus(fiber.StatusOK)
}
