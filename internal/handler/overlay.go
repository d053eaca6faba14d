package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/shortsmith/api/internal/client"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/service"
	"github.com/shortsmith/api/pkg/response"
)

type OverlayHandler struct {
	service *service.OverlayService
}

func NewOverlayHandler(svc *service.OverlayService) *OverlayHandler {
	return &OverlayHandler{service: svc}
}

// Overlay handles POST /api/voice-overlay
// @Summary      Narrate a rendered video
// @Description  Flatten the job script to Hook and CTA, synthesize it and mux it onto the video
// @Tags         Overlay
// @Accept       json
// @Produce      json
// @Param        request body model.OverlayRequest true "Artifact to narrate"
// @Success      200 {object} model.OverlayResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/voice-overlay [post]
func (h *OverlayHandler) Overlay(c *fiber.Ctx) error {
	var req model.OverlayRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	result, err := h.service.Overlay(c.UserContext(), req.Name())
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return response.ProviderError(c, apiErr.Error())
		}
		return response.FromError(c, err, "Voice overlay failed")
	}
	return response.OK(c, result)
}
