package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/service"
	"github.com/shortsmith/api/pkg/response"
)

// ContextHandler saves the project inputs that later renders fall back on
type ContextHandler struct {
	service   *service.ContextService
	validator *validator.Validate
}

func NewContextHandler(svc *service.ContextService, v *validator.Validate) *ContextHandler {
	return &ContextHandler{service: svc, validator: v}
}

// SaveScript handles POST /api/save-script
func (h *ContextHandler) SaveScript(c *fiber.Ctx) error {
	var req model.SaveScriptRequest
	if ok, err := parseBody(c, h.validator, &req); !ok {
		return err
	}
	if err := h.service.SaveScript(c.UserContext(), req.Script); err != nil {
		return response.FromError(c, err, "Failed to save script")
	}
	return response.OK(c, fiber.Map{"success": true})
}

// SaveStyle handles POST /api/save-style
func (h *ContextHandler) SaveStyle(c *fiber.Ctx) error {
	var req model.SaveStyleRequest
	if ok, err := parseBody(c, h.validator, &req); !ok {
		return err
	}
	if err := h.service.SaveStyle(c.UserContext(), req.StyleID, req.CustomStyle); err != nil {
		return response.FromError(c, err, "Failed to save style")
	}
	return response.OK(c, fiber.Map{"success": true})
}

// SaveOnboarding handles POST /api/save-onboarding
func (h *ContextHandler) SaveOnboarding(c *fiber.Ctx) error {
	var req model.SaveOnboardingRequest
	if ok, err := parseBody(c, h.validator, &req); !ok {
		return err
	}
	if err := h.service.SaveOnboarding(c.UserContext(), &req); err != nil {
		return response.FromError(c, err, "Failed to save onboarding")
	}
	return response.OK(c, fiber.Map{"success": true})
}

// Load handles GET /api/context
func (h *ContextHandler) Load(c *fiber.Ctx) error {
	pc, err := h.service.Load(c.UserContext())
	if err != nil {
		return response.FromError(c, err, "Failed to load context")
	}
	return response.OK(c, pc)
}
