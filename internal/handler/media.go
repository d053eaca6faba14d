package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/shortsmith/api/internal/media"
	"github.com/shortsmith/api/pkg/response"
)

// MediaHandler serves rendered videos and narration audio from the library
type MediaHandler struct {
	library *media.Library
}

func NewMediaHandler(library *media.Library) *MediaHandler {
	return &MediaHandler{library: library}
}

// Video handles GET /api/video/:name
func (h *MediaHandler) Video(c *fiber.Ctx) error {
	return h.serve(c, h.library.VideoPath)
}

// Audio handles GET /api/audio/:name
func (h *MediaHandler) Audio(c *fiber.Ctx) error {
	return h.serve(c, h.library.AudioPath)
}

func (h *MediaHandler) serve(c *fiber.Ctx, resolve func(string) (string, error)) error {
	path, err := resolve(c.Params("name"))
	if err != nil {
		return response.FromError(c, err, "Invalid media name")
	}
	if !media.Exists(path) {
		return response.NotFound(c, "Media not found")
	}

	c.Set(fiber.HeaderContentType, media.ContentType(path))
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return c.SendFile(path)
}
