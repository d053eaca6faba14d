package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Store     StoreConfig
	Redis     RedisConfig
	Dispatch  DispatchConfig
	Media     MediaConfig
	Sora      SoraConfig
	Process   ProcessConfig
	Voice     VoiceConfig
	LLM       LLMConfig
	FFmpeg    FFmpegConfig
	OAuth     OAuthConfig
	Upload    UploadConfig
	R2        R2Config
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	PublicURL string
}

type LogConfig struct {
	Level string
	File  string
}

type StoreConfig struct {
	Driver string // file, memory, redis, badger
	Dir    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DispatchConfig struct {
	Driver      string // inline, asynq
	Concurrency int
}

type MediaConfig struct {
	Dir string
}

// SoraConfig configures the managed video generation API
type SoraConfig struct {
	Endpoint       string
	APIKey         string
	APIVersion     string
	Model          string
	Width          int
	Height         int
	PollInterval   time.Duration
	MaxWait        time.Duration
	MaxPollErrors  int
	RequestsPerSec float64
}

// ProcessConfig configures the delegated local generator
type ProcessConfig struct {
	Python string
	Script string
}

type VoiceConfig struct {
	APIKey  string
	BaseURL string
	VoiceID string
	ModelID string
}

// LLMConfig configures the OpenAI-compatible chat completion API used for
// script and caption drafting
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type FFmpegConfig struct {
	Bin string
}

type OAuthConfig struct {
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	AuthURL       string
	TokenURL      string
	RevokeURL     string
	APIEndpoint   string
	StateTTL      time.Duration
	SweepSchedule string
	ReauthWait    time.Duration
}

type UploadConfig struct {
	Python            string
	Script            string
	Privacy           string
	PrimaryRetries    int
	RetryBackoff      time.Duration
	InteractiveReauth bool
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type AuthConfig struct {
	Enabled        bool
	JWTSecret      string
	OIDCIssuer     string
	OIDCClientID   string
	GatewayHeaders bool
}

type RateLimitConfig struct {
	RenderPerHour  int
	OverlayPerHour int
	UploadPerHour  int
	ScriptPerHour  int
}

func Load() (*Config, error) {
	// .env is optional and never overrides the real environment
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("AZURE_OPENAI_API_KEY")
	readSecret("ELEVENLABS_API_KEY")
	readSecret("OPENAI_API_KEY")
	readSecret("GOOGLE_CLIENT_SECRET")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	bindEnv(v)
	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	return fromViper(v), nil
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.public_url", "PUBLIC_URL")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.file", "LOG_FILE")
	_ = v.BindEnv("store.driver", "STORE_DRIVER")
	_ = v.BindEnv("store.dir", "STORE_DIR")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("dispatch.driver", "DISPATCH_DRIVER")
	_ = v.BindEnv("dispatch.concurrency", "DISPATCH_CONCURRENCY")
	_ = v.BindEnv("media.dir", "MEDIA_DIR")
	_ = v.BindEnv("sora.endpoint", "AZURE_OPENAI_ENDPOINT")
	_ = v.BindEnv("sora.api_key", "AZURE_OPENAI_API_KEY")
	_ = v.BindEnv("sora.api_version", "AZURE_OPENAI_API_VERSION")
	_ = v.BindEnv("sora.model", "SORA_MODEL")
	_ = v.BindEnv("sora.poll_interval", "SORA_POLL_INTERVAL")
	_ = v.BindEnv("sora.max_wait", "SORA_MAX_WAIT")
	_ = v.BindEnv("process.python", "PYTHON_BIN")
	_ = v.BindEnv("process.script", "VIDEO_CLI_SCRIPT")
	_ = v.BindEnv("voice.api_key", "ELEVENLABS_API_KEY")
	_ = v.BindEnv("voice.voice_id", "ELEVENLABS_VOICE_ID")
	_ = v.BindEnv("voice.model_id", "ELEVENLABS_MODEL_ID")
	_ = v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("llm.model", "OPENAI_MODEL")
	_ = v.BindEnv("ffmpeg.bin", "FFMPEG_BIN")
	_ = v.BindEnv("oauth.client_id", "GOOGLE_CLIENT_ID")
	_ = v.BindEnv("oauth.client_secret", "GOOGLE_CLIENT_SECRET")
	_ = v.BindEnv("oauth.redirect_url", "GOOGLE_REDIRECT_URI")
	_ = v.BindEnv("oauth.state_ttl", "OAUTH_STATE_TTL")
	_ = v.BindEnv("upload.script", "UPLOAD_CLI_SCRIPT")
	_ = v.BindEnv("upload.privacy", "UPLOAD_PRIVACY")
	_ = v.BindEnv("upload.primary_retries", "UPLOAD_PRIMARY_RETRIES")
	_ = v.BindEnv("upload.interactive_reauth", "UPLOAD_INTERACTIVE_REAUTH")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("auth.enabled", "AUTH_ENABLED")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.oidc_issuer", "OIDC_ISSUER")
	_ = v.BindEnv("auth.oidc_client_id", "OIDC_CLIENT_ID")
	_ = v.BindEnv("auth.gateway_headers", "GATEWAY_ENABLED")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("log.level", "info")

	v.SetDefault("store.driver", "file")
	v.SetDefault("store.dir", "./.ci")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("dispatch.driver", "inline")
	v.SetDefault("dispatch.concurrency", 4)
	v.SetDefault("media.dir", "./.ci/media")

	// Sora defaults
	v.SetDefault("sora.api_version", "preview")
	v.SetDefault("sora.model", "sora")
	v.SetDefault("sora.width", 1280)
	v.SetDefault("sora.height", 720)
	v.SetDefault("sora.poll_interval", 5*time.Second)
	v.SetDefault("sora.max_wait", 10*time.Minute)
	v.SetDefault("sora.max_poll_errors", 3)
	v.SetDefault("sora.requests_per_sec", 2.0)

	v.SetDefault("process.python", "python")
	v.SetDefault("process.script", "scripts/generate_video_cli.py")

	// ElevenLabs defaults
	v.SetDefault("voice.base_url", "https://api.elevenlabs.io")
	v.SetDefault("voice.voice_id", "21m00Tcm4TlvDq8ikWAM")
	v.SetDefault("voice.model_id", "eleven_multilingual_v2")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o")

	v.SetDefault("ffmpeg.bin", "ffmpeg")

	// Google OAuth defaults
	v.SetDefault("oauth.redirect_url", "http://localhost:8000/api/youtube/oauth/callback")
	v.SetDefault("oauth.auth_url", "https://accounts.google.com/o/oauth2/v2/auth")
	v.SetDefault("oauth.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("oauth.revoke_url", "https://oauth2.googleapis.com/revoke")
	v.SetDefault("oauth.state_ttl", 10*time.Minute)
	v.SetDefault("oauth.sweep_schedule", "@every 5m")
	v.SetDefault("oauth.reauth_wait", 2*time.Minute)

	v.SetDefault("upload.python", "python")
	v.SetDefault("upload.script", "scripts/youtube_upload_cli.py")
	v.SetDefault("upload.privacy", "public")
	v.SetDefault("upload.primary_retries", 1)
	v.SetDefault("upload.retry_backoff", 2*time.Second)
	v.SetDefault("upload.interactive_reauth", false)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("ratelimit.render_per_hour", 20)
	v.SetDefault("ratelimit.overlay_per_hour", 40)
	v.SetDefault("ratelimit.upload_per_hour", 20)
	v.SetDefault("ratelimit.script_per_hour", 60)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			PublicURL: v.GetString("server.public_url"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			File:  v.GetString("log.file"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("store.driver")),
			Dir:    v.GetString("store.dir"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Dispatch: DispatchConfig{
			Driver:      strings.ToLower(v.GetString("dispatch.driver")),
			Concurrency: v.GetInt("dispatch.concurrency"),
		},
		Media: MediaConfig{
			Dir: v.GetString("media.dir"),
		},
		Sora: SoraConfig{
			Endpoint:       strings.TrimRight(v.GetString("sora.endpoint"), "/"),
			APIKey:         v.GetString("sora.api_key"),
			APIVersion:     v.GetString("sora.api_version"),
			Model:          v.GetString("sora.model"),
			Width:          v.GetInt("sora.width"),
			Height:         v.GetInt("sora.height"),
			PollInterval:   v.GetDuration("sora.poll_interval"),
			MaxWait:        v.GetDuration("sora.max_wait"),
			MaxPollErrors:  v.GetInt("sora.max_poll_errors"),
			RequestsPerSec: v.GetFloat64("sora.requests_per_sec"),
		},
		Process: ProcessConfig{
			Python: v.GetString("process.python"),
			Script: v.GetString("process.script"),
		},
		Voice: VoiceConfig{
			APIKey:  v.GetString("voice.api_key"),
			BaseURL: v.GetString("voice.base_url"),
			VoiceID: v.GetString("voice.voice_id"),
			ModelID: v.GetString("voice.model_id"),
		},
		LLM: LLMConfig{
			APIKey:  v.GetString("llm.api_key"),
			BaseURL: strings.TrimRight(v.GetString("llm.base_url"), "/"),
			Model:   v.GetString("llm.model"),
		},
		FFmpeg: FFmpegConfig{
			Bin: v.GetString("ffmpeg.bin"),
		},
		OAuth: OAuthConfig{
			ClientID:      v.GetString("oauth.client_id"),
			ClientSecret:  v.GetString("oauth.client_secret"),
			RedirectURL:   v.GetString("oauth.redirect_url"),
			AuthURL:       v.GetString("oauth.auth_url"),
			TokenURL:      v.GetString("oauth.token_url"),
			RevokeURL:     v.GetString("oauth.revoke_url"),
			APIEndpoint:   v.GetString("oauth.api_endpoint"),
			StateTTL:      v.GetDuration("oauth.state_ttl"),
			SweepSchedule: v.GetString("oauth.sweep_schedule"),
			ReauthWait:    v.GetDuration("oauth.reauth_wait"),
		},
		Upload: UploadConfig{
			Python:            v.GetString("upload.python"),
			Script:            v.GetString("upload.script"),
			Privacy:           v.GetString("upload.privacy"),
			PrimaryRetries:    v.GetInt("upload.primary_retries"),
			RetryBackoff:      v.GetDuration("upload.retry_backoff"),
			InteractiveReauth: v.GetBool("upload.interactive_reauth"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Auth: AuthConfig{
			Enabled:        v.GetBool("auth.enabled"),
			JWTSecret:      v.GetString("auth.jwt_secret"),
			OIDCIssuer:     strings.TrimRight(v.GetString("auth.oidc_issuer"), "/"),
			OIDCClientID:   v.GetString("auth.oidc_client_id"),
			GatewayHeaders: v.GetBool("auth.gateway_headers"),
		},
		RateLimit: RateLimitConfig{
			RenderPerHour:  v.GetInt("ratelimit.render_per_hour"),
			OverlayPerHour: v.GetInt("ratelimit.overlay_per_hour"),
			UploadPerHour:  v.GetInt("ratelimit.upload_per_hour"),
			ScriptPerHour:  v.GetInt("ratelimit.script_per_hour"),
		},
	}
}

// SoraConfigured reports whether the managed provider can be used.
func (c *Config) SoraConfigured() bool {
	return c.Sora.Endpoint != "" && c.Sora.APIKey != ""
}

// R2Configured reports whether the artifact mirror can be built.
func (c *Config) R2Configured() bool {
	return c.R2.AccountID != "" && c.R2.AccessKeyID != "" && c.R2.SecretAccessKey != ""
}
