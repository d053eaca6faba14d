package handler

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/service"
	"github.com/shortsmith/api/pkg/response"
)

const (
	defaultAwaitTimeout = 25 * time.Second
	maxAwaitTimeout     = 60 * time.Second
)

var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>YouTube connection</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4rem">
{{if .Success}}<h2>Connected{{if .IdentityName}} to {{.IdentityName}}{{end}}</h2>
{{else}}<h2>Connection failed</h2><p>{{.Error}}</p>{{end}}
<p>You can close this window.</p>
<script>
  var msg = {{.Message}};
  if (window.opener) { window.opener.postMessage(msg, "*"); }
  setTimeout(function () { window.close(); }, 1500);
</script>
</body>
</html>
`))

type callbackView struct {
	Success      bool
	IdentityName string
	Error        string
	Message      map[string]interface{}
}

// OAuthHandler drives the YouTube connection flow
type OAuthHandler struct {
	connector *service.ConnectorService
	validator *validator.Validate
	logger    arbor.ILogger
}

func NewOAuthHandler(connector *service.ConnectorService, v *validator.Validate, logger arbor.ILogger) *OAuthHandler {
	return &OAuthHandler{connector: connector, validator: v, logger: logger}
}

// Start handles POST /api/youtube/oauth/start
// @Summary      Begin YouTube authorization
// @Tags         YouTube
// @Produce      json
// @Success      200 {object} model.OAuthStartResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /api/youtube/oauth/start [post]
func (h *OAuthHandler) Start(c *fiber.Ctx) error {
	result, err := h.connector.StartAuthorization(c.UserContext())
	if err != nil {
		return response.FromError(c, err, "Failed to start authorization")
	}
	return response.OK(c, result)
}

// Callback handles POST /api/youtube/oauth/callback with {code, state}
// @Summary      Complete YouTube authorization
// @Tags         YouTube
// @Accept       json
// @Produce      json
// @Param        request body model.OAuthCallbackRequest true "Authorization code and state"
// @Success      200 {object} model.Resolution
// @Failure      400 {object} model.Resolution
// @Router       /api/youtube/oauth/callback [post]
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	var req model.OAuthCallbackRequest
	if ok, err := parseBody(c, h.validator, &req); !ok {
		return err
	}

	res, err := h.connector.Relay().Publish(c.UserContext(), model.Signal{
		Type:  model.SignalCode,
		State: req.State,
		Code:  req.Code,
	})
	if err != nil {
		return response.FromError(c, err, "Authorization failed")
	}
	if !res.Success {
		return c.Status(fiber.StatusBadRequest).JSON(res)
	}
	return response.OK(c, res)
}

// CallbackPage handles GET /api/youtube/oauth/callback, the redirect target
// registered with Google. It settles the state and renders a page that
// reports back to the opener window.
func (h *OAuthHandler) CallbackPage(c *fiber.Ctx) error {
	state := c.Query("state")
	sig := model.Signal{Type: model.SignalCode, State: state, Code: c.Query("code")}
	if providerErr := c.Query("error"); providerErr != "" {
		sig = model.Signal{Type: model.SignalError, State: state, Message: providerErr}
	}

	view := callbackView{}
	res, err := h.connector.Relay().Publish(c.UserContext(), sig)
	switch {
	case err != nil:
		h.logger.Warn().Err(err).Msg("OAuth callback could not be settled")
		view.Error = "This authorization link is invalid or has expired."
		if sig.Type == model.SignalError {
			view.Error = sig.Message
		}
	case res.Success:
		view.Success = true
		view.IdentityName = res.IdentityName
	default:
		view.Error = res.Error
	}

	view.Message = map[string]interface{}{"type": "YOUTUBE_OAUTH_ERROR", "state": state, "error": view.Error}
	if view.Success {
		view.Message = map[string]interface{}{"type": "YOUTUBE_OAUTH_SUCCESS", "state": state, "channelName": view.IdentityName}
	}

	var sb strings.Builder
	if err := callbackPage.Execute(&sb, view); err != nil {
		return response.ServiceError(c, "Failed to render callback page")
	}
	c.Type("html", "utf-8")
	return c.SendString(sb.String())
}

// Signal handles POST /api/youtube/oauth/signal, used by a window that
// talks to the API directly instead of posting to its opener.
func (h *OAuthHandler) Signal(c *fiber.Ctx) error {
	var sig model.Signal
	if ok, err := parseBody(c, h.validator, &sig); !ok {
		return err
	}

	res, err := h.connector.Relay().Publish(c.UserContext(), sig)
	if err != nil {
		return response.FromError(c, err, "Failed to relay signal")
	}
	return response.OK(c, res)
}

// Await handles GET /api/youtube/oauth/await/:state. It holds the request
// until the state settles or the timeout passes, answering 204 in the
// latter case so the caller polls again.
func (h *OAuthHandler) Await(c *fiber.Ctx) error {
	state := c.Params("state")
	if state == "" {
		return response.ValidationError(c, "State is required", nil)
	}

	timeout := defaultAwaitTimeout
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return response.ValidationError(c, "Invalid timeout", nil)
		}
		timeout = min(d, maxAwaitTimeout)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
	defer cancel()

	res, err := h.connector.Relay().Await(ctx, state)
	if errors.Is(err, context.DeadlineExceeded) {
		return response.NoContent(c)
	}
	if err != nil {
		return response.FromError(c, err, "Failed to await authorization")
	}
	return response.OK(c, res)
}

// Status handles GET /api/youtube/status
func (h *OAuthHandler) Status(c *fiber.Ctx) error {
	status, err := h.connector.Status(c.UserContext())
	if err != nil {
		return response.FromError(c, err, "Failed to read connection")
	}
	return response.OK(c, status)
}

// Disconnect handles POST /api/youtube/disconnect
func (h *OAuthHandler) Disconnect(c *fiber.Ctx) error {
	if err := h.connector.Disconnect(c.UserContext()); err != nil {
		return response.FromError(c, err, "Failed to disconnect")
	}
	return response.OK(c, fiber.Map{"success": true})
}

// Test handles GET /api/youtube/test
func (h *OAuthHandler) Test(c *fiber.Ctx) error {
	channel, err := h.connector.TestConnection(c.UserContext())
	if err != nil {
		if errors.Is(err, model.ErrReauthorizationRequired) {
			return response.FromError(c, err, "")
		}
		h.logger.Warn().Err(err).Msg("YouTube connection test failed")
		return response.ProviderError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"success": true, "channel": channel})
}
