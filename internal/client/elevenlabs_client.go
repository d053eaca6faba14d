package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/config"
	"github.com/shortsmith/api/internal/model"
)

// SpeechSynthesizer turns text into encoded audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ElevenLabsClient implements SpeechSynthesizer for the ElevenLabs API
type ElevenLabsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	voiceID    string
	modelID    string
	logger     arbor.ILogger
}

// VoiceSettings tune the narrator delivery
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// SpeechRequest is the text-to-speech request body
type SpeechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// DefaultVoiceSettings is the short-form narrator profile
var DefaultVoiceSettings = VoiceSettings{
	Stability:       0.4,
	SimilarityBoost: 0.7,
	Style:           0,
	UseSpeakerBoost: true,
}

// NewElevenLabsClient creates a new text-to-speech client
func NewElevenLabsClient(cfg *config.VoiceConfig, logger arbor.ILogger) *ElevenLabsClient {
	return &ElevenLabsClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		voiceID: cfg.VoiceID,
		modelID: cfg.ModelID,
		logger:  logger,
	}
}

// Synthesize returns MP3 bytes for text
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("text-to-speech: %w: missing ELEVENLABS_API_KEY", model.ErrNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return nil, model.ErrEmptyInput
	}

	bodyBytes, err := json.Marshal(SpeechRequest{
		Text:          text,
		ModelID:       c.modelID,
		VoiceSettings: DefaultVoiceSettings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, url.PathEscape(c.voiceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("voice", c.voiceID).Int("chars", len(text)).Msg("Synthesizing narration")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Service: "elevenlabs", StatusCode: resp.StatusCode, Body: string(audio)}
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("text-to-speech returned no audio")
	}
	return audio, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ElevenLabsClient) IsConfigured() bool {
	return c.apiKey != ""
}
