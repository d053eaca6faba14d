package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortsmith/api/internal/auth"
	"github.com/shortsmith/api/internal/client"
	"github.com/shortsmith/api/internal/config"
	"github.com/shortsmith/api/internal/handler"
	"github.com/shortsmith/api/internal/logger"
	"github.com/shortsmith/api/internal/media"
	"github.com/shortsmith/api/internal/middleware"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/service"
	"github.com/shortsmith/api/internal/store"
	ws "github.com/shortsmith/api/internal/websocket"
	"github.com/shortsmith/api/internal/worker"
)

const testJWTSecret = "test-secret-for-e2e"

// generator writes a placeholder video to the --out path
const generatorScript = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --out) out="$2"; shift ;;
  esac
  shift
done
echo "rendering" >&2
printf 'video' > "$out"
`

type recordingSynth struct {
	texts []string
}

func (s *recordingSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.texts = append(s.texts, text)
	return []byte("mp3"), nil
}

type copyMuxer struct{}

func (copyMuxer) Mux(_ context.Context, videoPath, _ string, _ int, outPath string) error {
	data, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

// testApp holds the app and the pieces tests reach into
type testApp struct {
	app     *fiber.App
	inline  *worker.InlineDispatcher
	jobs    *store.JobStore
	library *media.Library
	synth   *recordingSynth
}

// setupApp wires the same routes as main.go against an in-memory store, a
// shell generator and fake narration.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("the generator script needs a POSIX shell")
	}

	log := logger.Nop()
	dir := t.TempDir()

	script := filepath.Join(dir, "gen.sh")
	require.NoError(t, os.WriteFile(script, []byte(generatorScript), 0o755))

	library, err := media.NewLibrary(filepath.Join(dir, "media"))
	require.NoError(t, err)

	kv := store.NewMemoryKV()
	jobs := store.NewJobStore(kv)
	validate := validator.New()

	hub := ws.NewHub(log)
	go hub.Run()
	t.Cleanup(hub.Stop)

	renderWorker := worker.NewRenderWorker(jobs, library, nil, hub, log,
		worker.NewProcessAdapter(config.ProcessConfig{Python: "sh", Script: script}, library, log),
	)
	inline := worker.NewInlineDispatcher(renderWorker)
	t.Cleanup(inline.Wait)

	synth := &recordingSynth{}
	oauthCfg := &config.OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8000/api/youtube/oauth/callback",
		AuthURL:      "https://accounts.example.com/o/oauth2/auth",
		TokenURL:     "http://127.0.0.1:1/token",
		RevokeURL:    "http://127.0.0.1:1/revoke",
		StateTTL:     time.Minute,
	}
	youtubeClient := client.NewYouTubeClient("http://127.0.0.1:1/", log)

	contextService := service.NewContextService(kv)
	renderService := service.NewRenderService(jobs, contextService, inline, model.ProviderProcess, nil, log)
	scriptService := service.NewScriptService(client.NewChatClient(&config.LLMConfig{}, log), contextService, log)
	overlayService := service.NewOverlayService(jobs, library, synth, copyMuxer{}, log)
	connector := service.NewConnectorService(oauthCfg, kv, youtubeClient, log)
	connector.Relay().OnResolved(hub.BroadcastOAuthResolved)
	uploadCfg := config.UploadConfig{Python: "false", Privacy: "private", PrimaryRetries: 1}
	uploadService := service.NewUploadService(connector, youtubeClient, client.NewUploadCLI(&uploadCfg, log), nil, library, uploadCfg, log)

	renderHandler := handler.NewRenderHandler(renderService, validate)
	overlayHandler := handler.NewOverlayHandler(overlayService)
	mediaHandler := handler.NewMediaHandler(library)
	contextHandler := handler.NewContextHandler(contextService, validate)
	scriptHandler := handler.NewScriptHandler(scriptService, validate)
	oauthHandler := handler.NewOAuthHandler(connector, validate, log)
	uploadHandler := handler.NewUploadHandler(uploadService, validate)

	authenticator := auth.NewAuthenticator(nil, testJWTSecret)
	authHandler := handler.NewAuthHandler(authenticator)
	rateLimiter := middleware.NewRateLimiter(middleware.NewMemoryCounter(), log)

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"sora":    false,
				"process": true,
				"tts":     true,
				"ffmpeg":  true,
				"youtube": connector.IsConfigured(),
				"r2":      false,
				"store":   "memory",
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)
	app.Get("/api/youtube/oauth/callback", oauthHandler.CallbackPage)

	api := app.Group("/api", middleware.NewAuthMiddleware(authenticator).Authenticate())

	// high limits so tests don't get blocked
	api.Post("/render-video", rateLimiter.RenderLimit(10000), renderHandler.Start)
	api.Get("/render-status", renderHandler.StatusQuery)
	api.Get("/render/status/:jobId", renderHandler.Status)
	api.Get("/render/mirror/:jobId", renderHandler.MirrorURL)
	api.Post("/voice-overlay", rateLimiter.OverlayLimit(10000), overlayHandler.Overlay)
	api.Get("/video/:name", mediaHandler.Video)
	api.Get("/audio/:name", mediaHandler.Audio)
	api.Get("/context", contextHandler.Load)
	api.Post("/save-script", contextHandler.SaveScript)
	api.Post("/save-style", contextHandler.SaveStyle)
	api.Post("/save-onboarding", contextHandler.SaveOnboarding)
	api.Post("/generate-script", rateLimiter.ScriptLimit(10000), scriptHandler.Generate)
	api.Post("/generate-caption", rateLimiter.ScriptLimit(10000), scriptHandler.Caption)

	youtube := api.Group("/youtube")
	youtube.Post("/oauth/start", oauthHandler.Start)
	youtube.Post("/oauth/callback", oauthHandler.Callback)
	youtube.Post("/oauth/signal", oauthHandler.Signal)
	youtube.Get("/oauth/await/:state", oauthHandler.Await)
	youtube.Get("/status", oauthHandler.Status)
	youtube.Post("/disconnect", oauthHandler.Disconnect)
	youtube.Get("/test", oauthHandler.Test)
	youtube.Post("/upload", rateLimiter.UploadLimit(10000), uploadHandler.Upload)

	return &testApp{app: app, inline: inline, jobs: jobs, library: library, synth: synth}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueLegacyToken("test-user-123", "test@example.com", testJWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}

// doRequest performs an HTTP request against the test app.
func doRequest(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	return doRequest(t, app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &result), "body: %s", body)
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode)
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	detail, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected error envelope, got %v", body)
	return detail["code"].(string)
}

// renderJob submits body and waits for the inline worker to settle the job.
func renderJob(t *testing.T, ta *testApp, body string) map[string]interface{} {
	t.Helper()
	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/render-video", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	started := parseJSON(t, resp)

	ta.inline.Wait()

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/render/status/"+started["jobId"].(string), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return parseJSON(t, resp)
}
