package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/service"
	"github.com/shortsmith/api/pkg/response"
)

type UploadHandler struct {
	service   *service.UploadService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.UploadService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// Upload handles POST /api/youtube/upload
// @Summary      Publish a video to YouTube
// @Description  Upload through the Data API, falling back to the uploader CLI
// @Tags         YouTube
// @Accept       json
// @Produce      json
// @Param        request body model.UploadRequest true "Artifact and metadata"
// @Success      200 {object} model.UploadResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} model.UploadResult
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/youtube/upload [post]
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	var req model.UploadRequest
	if ok, err := parseBody(c, h.validator, &req); !ok {
		return err
	}
	if req.Ref() == "" {
		return response.ValidationError(c, "artifactRef is required", nil)
	}

	result, err := h.service.Upload(c.UserContext(), &req)
	if errors.Is(err, model.ErrReauthorizationRequired) {
		result, err = &model.UploadResult{RequireAuth: true}, nil
	}
	if err != nil {
		if errors.Is(err, model.ErrInvalidArtifact) || errors.Is(err, model.ErrJobNotFound) {
			return response.FromError(c, err, "")
		}
		return response.ProviderError(c, err.Error())
	}
	if result.RequireAuth {
		return c.Status(fiber.StatusUnauthorized).JSON(result)
	}
	return response.OK(c, result)
}
