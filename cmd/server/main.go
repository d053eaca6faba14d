package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

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
	"github.com/shortsmith/api/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// the logger depends on config, so this is the one plain exit
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(&cfg.Log)

	// Redis is only needed by the redis store and the asynq dispatcher
	var redisClient *redis.Client
	useAsynq := strings.EqualFold(cfg.Dispatch.Driver, "asynq")
	if useAsynq || strings.EqualFold(cfg.Store.Driver, "redis") {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	kv, err := store.Open(&cfg.Store, redisClient, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("Failed to open store")
	}
	jobs := store.NewJobStore(kv)

	library, err := media.NewLibrary(cfg.Media.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare media library")
	}

	validate := validator.New()

	hub := ws.NewHub(log)
	go hub.Run()

	// External clients
	soraClient := client.NewSoraClient(&cfg.Sora, log)
	voiceClient := client.NewElevenLabsClient(&cfg.Voice, log)
	chatClient := client.NewChatClient(&cfg.LLM, log)
	youtubeClient := client.NewYouTubeClient(cfg.OAuth.APIEndpoint, log)
	uploadCLI := client.NewUploadCLI(&cfg.Upload, log)
	ffmpeg := media.NewFFmpeg(cfg.FFmpeg.Bin, log)

	var mirror client.ArtifactMirror
	if cfg.R2Configured() {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn().Err(err).Msg("R2 client unavailable, artifacts stay local")
		} else {
			mirror = r2Client
			log.Info().Str("bucket", cfg.R2.BucketName).Msg("R2 artifact mirror enabled")
		}
	}

	// Rendering: the managed API when configured, the local generator otherwise
	provider := model.ProviderProcess
	if cfg.SoraConfigured() {
		provider = model.ProviderSora
	}
	renderWorker := worker.NewRenderWorker(jobs, library, mirror, hub, log,
		worker.NewSoraAdapter(soraClient, library, cfg.Sora, log),
		worker.NewProcessAdapter(cfg.Process, library, log),
	)

	var dispatcher service.Dispatcher
	var inline *worker.InlineDispatcher
	var asynqClient *asynq.Client
	if useAsynq {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		dispatcher = service.NewAsynqDispatcher(asynqClient)
	} else {
		inline = worker.NewInlineDispatcher(renderWorker)
		dispatcher = inline
	}
	log.Info().Str("provider", string(provider)).Str("dispatch", cfg.Dispatch.Driver).Msg("Render pipeline ready")

	// Services
	contextService := service.NewContextService(kv)
	renderService := service.NewRenderService(jobs, contextService, dispatcher, provider, mirror, log)
	scriptService := service.NewScriptService(chatClient, contextService, log)
	overlayService := service.NewOverlayService(jobs, library, voiceClient, ffmpeg, log)
	connector := service.NewConnectorService(&cfg.OAuth, kv, youtubeClient, log)
	connector.Relay().OnResolved(hub.BroadcastOAuthResolved)
	if err := connector.StartSweeper(cfg.OAuth.SweepSchedule); err != nil {
		log.Warn().Err(err).Str("schedule", cfg.OAuth.SweepSchedule).Msg("OAuth state sweeper not started")
	}

	var reauth service.Reauthorizer
	if cfg.Upload.InteractiveReauth && connector.IsConfigured() {
		reauth = service.NewInteractiveReauthorizer(connector, hub, cfg.OAuth.ReauthWait, log)
	}
	uploadService := service.NewUploadService(connector, youtubeClient, uploadCLI, reauth, library, cfg.Upload, log)

	// Handlers
	renderHandler := handler.NewRenderHandler(renderService, validate)
	overlayHandler := handler.NewOverlayHandler(overlayService)
	mediaHandler := handler.NewMediaHandler(library)
	contextHandler := handler.NewContextHandler(contextService, validate)
	scriptHandler := handler.NewScriptHandler(scriptService, validate)
	oauthHandler := handler.NewOAuthHandler(connector, validate, log)
	uploadHandler := handler.NewUploadHandler(uploadService, validate)

	// Auth: OIDC JWKS first, legacy HMAC as fallback
	var verifier auth.TokenVerifier
	if cfg.Auth.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(&cfg.Auth)
		if err != nil {
			log.Warn().Err(err).Str("issuer", cfg.Auth.OIDCIssuer).Msg("OIDC verifier unavailable")
		} else {
			verifier = v
			defer v.Close()
			log.Info().Str("issuer", cfg.Auth.OIDCIssuer).Msg("OIDC JWKS verifier enabled")
		}
	}
	authenticator := auth.NewAuthenticator(verifier, cfg.Auth.JWTSecret)
	authHandler := handler.NewAuthHandler(authenticator)

	var counter middleware.Counter = middleware.NewMemoryCounter()
	if redisClient != nil {
		counter = middleware.NewRedisCounter(redisClient)
	}
	rateLimiter := middleware.NewRateLimiter(counter, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"sora":    soraClient.IsConfigured(),
				"process": cfg.Process.Script != "" && media.Exists(cfg.Process.Script),
				"tts":     voiceClient.IsConfigured(),
				"ffmpeg":  ffmpeg.IsConfigured(),
				"youtube": connector.IsConfigured(),
				"r2":      mirror != nil,
				"store":   cfg.Store.Driver,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	// Google redirects the consent window here, so it sits outside /api auth
	app.Get("/api/youtube/oauth/callback", oauthHandler.CallbackPage)

	api := app.Group("/api")
	if cfg.Auth.Enabled {
		if cfg.Auth.GatewayHeaders {
			api.Use(middleware.GatewayAuthMiddleware())
			log.Info().Msg("API auth: gateway headers")
		} else {
			api.Use(middleware.NewAuthMiddleware(authenticator).Authenticate())
			log.Info().Msg("API auth: bearer token")
		}
	}

	api.Post("/render-video", rateLimiter.RenderLimit(cfg.RateLimit.RenderPerHour), renderHandler.Start)
	api.Get("/render-status", renderHandler.StatusQuery)
	api.Get("/render/status/:jobId", renderHandler.Status)
	api.Get("/render/mirror/:jobId", renderHandler.MirrorURL)

	api.Post("/voice-overlay", rateLimiter.OverlayLimit(cfg.RateLimit.OverlayPerHour), overlayHandler.Overlay)

	api.Get("/video/:name", mediaHandler.Video)
	api.Get("/audio/:name", mediaHandler.Audio)

	api.Get("/context", contextHandler.Load)
	api.Post("/save-script", contextHandler.SaveScript)
	api.Post("/save-style", contextHandler.SaveStyle)
	api.Post("/save-onboarding", contextHandler.SaveOnboarding)

	api.Post("/generate-script", rateLimiter.ScriptLimit(cfg.RateLimit.ScriptPerHour), scriptHandler.Generate)
	api.Post("/generate-caption", rateLimiter.ScriptLimit(cfg.RateLimit.ScriptPerHour), scriptHandler.Caption)

	youtube := api.Group("/youtube")
	youtube.Post("/oauth/start", oauthHandler.Start)
	youtube.Post("/oauth/callback", oauthHandler.Callback)
	youtube.Post("/oauth/signal", oauthHandler.Signal)
	youtube.Get("/oauth/await/:state", oauthHandler.Await)
	youtube.Get("/status", oauthHandler.Status)
	youtube.Post("/disconnect", oauthHandler.Disconnect)
	youtube.Get("/test", oauthHandler.Test)
	youtube.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), uploadHandler.Upload)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))
	app.Get("/ws/oauth", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, ws.OAuthTopic)
	}))

	var workerServer *asynq.Server
	if useAsynq {
		workerServer, err = startWorkerServer(cfg, renderWorker)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start asynq worker")
		}
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Msg("Server starting")
	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("Server stopped")
	}

	shutdown(log, connector, workerServer, asynqClient, inline, hub, kv, redisClient)
}

func shutdown(log arbor.ILogger, connector *service.ConnectorService, workerServer *asynq.Server, asynqClient *asynq.Client, inline *worker.InlineDispatcher, hub *ws.Hub, kv store.KV, redisClient *redis.Client) {
	connector.StopSweeper()
	if workerServer != nil {
		workerServer.Shutdown()
	}
	if asynqClient != nil {
		asynqClient.Close()
	}
	if inline != nil {
		// running jobs record their outcome before the store closes
		inline.Wait()
	}
	hub.Stop()
	if err := kv.Close(); err != nil {
		log.Error().Err(err).Msg("Store close error")
	}
	if redisClient != nil {
		redisClient.Close()
	}
	log.Info().Msg("Server exited")
}

func startWorkerServer(cfg *config.Config, renderWorker *worker.RenderWorker) (*asynq.Server, error) {
	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}

	concurrency := cfg.Dispatch.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{service.QueueRender: 1},
			LogLevel:    asynqLogLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeRender, renderWorker.ProcessTask)

	return srv, srv.Start(mux)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
