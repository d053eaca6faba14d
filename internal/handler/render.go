package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/service"
	"github.com/shortsmith/api/pkg/response"
)

const mirrorURLExpiry = 15 * time.Minute

type RenderHandler struct {
	service   *service.RenderService
	validator *validator.Validate
}

func NewRenderHandler(svc *service.RenderService, v *validator.Validate) *RenderHandler {
	return &RenderHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/render-video
// @Summary      Start render job
// @Description  Create a render job from the script, audience and style, falling back to the saved context
// @Tags         Render
// @Accept       json
// @Produce      json
// @Param        request body model.RenderStartRequest true "Render request"
// @Success      202 {object} model.RenderStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/render-video [post]
func (h *RenderHandler) Start(c *fiber.Ctx) error {
	var req model.RenderStartRequest
	// an empty body means "use the saved context"
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, h.validator, &req); !ok {
			return err
		}
	}

	result, err := h.service.Submit(c.UserContext(), &req)
	if err != nil {
		return response.FromError(c, err, "Failed to start render")
	}
	return response.Accepted(c, result)
}

// Status handles GET /api/render/status/:jobId
// @Summary      Get render job
// @Tags         Render
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.Job
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/render/status/{jobId} [get]
func (h *RenderHandler) Status(c *fiber.Ctx) error {
	return h.status(c, c.Params("jobId"))
}

// StatusQuery handles GET /api/render-status?jobId=
func (h *RenderHandler) StatusQuery(c *fiber.Ctx) error {
	return h.status(c, c.Query("jobId"))
}

func (h *RenderHandler) status(c *fiber.Ctx, jobID string) error {
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.Status(c.UserContext(), jobID)
	if err != nil {
		return response.FromError(c, err, "Failed to read job")
	}
	return response.OK(c, job)
}

// MirrorURL handles GET /api/render/mirror/:jobId and returns a short-lived
// signed link to the object storage copy.
func (h *RenderHandler) MirrorURL(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	url, err := h.service.SignedMirrorURL(c.UserContext(), jobID, mirrorURLExpiry)
	if err != nil {
		return response.FromError(c, err, "Failed to sign mirror URL")
	}
	return response.OK(c, fiber.Map{
		"url":       url,
		"expiresIn": int(mirrorURLExpiry.Seconds()),
	})
}
