package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/shortsmith/api/internal/client"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/service"
	"github.com/shortsmith/api/pkg/response"
)

type ScriptHandler struct {
	service   *service.ScriptService
	validator *validator.Validate
}

func NewScriptHandler(svc *service.ScriptService, v *validator.Validate) *ScriptHandler {
	return &ScriptHandler{service: svc, validator: v}
}

// Generate handles POST /api/generate-script
// @Summary      Draft scripts
// @Description  Draft three scored Hook/Points/CTA scripts for an idea
// @Tags         Script
// @Accept       json
// @Produce      json
// @Param        request body model.GenerateScriptRequest true "Idea"
// @Success      200 {object} model.GenerateScriptResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/generate-script [post]
func (h *ScriptHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateScriptRequest
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, h.validator, &req); !ok {
			return err
		}
	}

	result, err := h.service.Generate(c.UserContext(), &req)
	if err != nil {
		return chatError(c, err, "Script generation failed")
	}
	return response.OK(c, result)
}

// Caption handles POST /api/generate-caption
// @Summary      Draft a post caption
// @Description  Write a caption and hashtags for the given or saved script
// @Tags         Script
// @Accept       json
// @Produce      json
// @Param        request body model.GenerateCaptionRequest false "Script"
// @Success      200 {object} model.GenerateCaptionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/generate-caption [post]
func (h *ScriptHandler) Caption(c *fiber.Ctx) error {
	var req model.GenerateCaptionRequest
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, h.validator, &req); !ok {
			return err
		}
	}

	result, err := h.service.Caption(c.UserContext(), &req)
	if err != nil {
		return chatError(c, err, "Caption generation failed")
	}
	return response.OK(c, result)
}

func chatError(c *fiber.Ctx, err error, fallback string) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return response.ProviderError(c, apiErr.Error())
	}
	return response.FromError(c, err, fallback)
}
