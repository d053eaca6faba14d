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
	"golang.org/x/time/rate"

	"github.com/shortsmith/api/internal/config"
)

// VideoGenerator is the managed video generation API used by the render worker.
type VideoGenerator interface {
	CreateVideoJob(ctx context.Context, req *CreateVideoJobRequest) (*VideoJob, error)
	GetVideoJob(ctx context.Context, jobID string) (*VideoJob, error)
	DownloadVideo(ctx context.Context, generationID string, w io.Writer) (int64, error)
	IsConfigured() bool
}

// SoraClient talks to Sora on Azure OpenAI
type SoraClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	apiVersion string
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// CreateVideoJobRequest is the body of a generation request
type CreateVideoJobRequest struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	NSeconds int    `json:"n_seconds"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// VideoJob is a remote generation job
type VideoJob struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Generations   []VideoGeneration `json:"generations,omitempty"`
}

// VideoGeneration is one produced clip of a job
type VideoGeneration struct {
	ID    string `json:"id"`
	JobID string `json:"job_id,omitempty"`
}

// Remote job states
const (
	VideoJobSucceeded = "succeeded"
	VideoJobFailed    = "failed"
	VideoJobCancelled = "cancelled"
)

// APIError is a non-2xx answer from an external API.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Body)
}

// Transient reports whether retrying the same request may succeed.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewSoraClient creates a new Sora API client
func NewSoraClient(cfg *config.SoraConfig, logger arbor.ILogger) *SoraClient {
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	return &SoraClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// CreateVideoJob submits a generation request
func (c *SoraClient) CreateVideoJob(ctx context.Context, req *CreateVideoJobRequest) (*VideoJob, error) {
	var result VideoJob
	if err := c.post(ctx, "/openai/v1/video/generations/jobs", req, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, fmt.Errorf("sora create returned no job id")
	}
	return &result, nil
}

// GetVideoJob retrieves the state of a generation job
func (c *SoraClient) GetVideoJob(ctx context.Context, jobID string) (*VideoJob, error) {
	var result VideoJob
	path := "/openai/v1/video/generations/jobs/" + url.PathEscape(jobID)
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	result.Status = strings.ToLower(result.Status)
	return &result, nil
}

// DownloadVideo streams the rendered clip of a generation into w
func (c *SoraClient) DownloadVideo(ctx context.Context, generationID string, w io.Writer) (int64, error) {
	path := "/openai/v1/video/generations/" + url.PathEscape(generationID) + "/content/video"
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to download video: %w", err)
	}
	return n, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SoraClient) IsConfigured() bool {
	return c.endpoint != "" && c.apiKey != ""
}

func (c *SoraClient) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, result)
}

func (c *SoraClient) get(ctx context.Context, path string, result interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, result)
}

func (c *SoraClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u := fmt.Sprintf("%s%s?api-version=%s", c.endpoint, path, url.QueryEscape(c.apiVersion))
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	return req, nil
}

// do paces the request, sends it and turns non-2xx answers into *APIError.
// The caller closes the body on success.
func (c *SoraClient) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	c.logger.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("Sora API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", req.URL.Path).Msg("Sora API request failed")
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", req.URL.Path).Msg("Sora API error")
		return nil, &APIError{Service: "sora", StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func (c *SoraClient) doJSON(req *http.Request, result interface{}) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
