package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/config"
	"github.com/shortsmith/api/internal/model"
)

// VideoPublisher uploads a file through some means other than the API client.
type VideoPublisher interface {
	Publish(ctx context.Context, filePath string, meta model.VideoMetadata) (string, error)
}

// UploadCLI shells out to the bundled uploader script, which keeps its own
// credentials. It is the fallback when the API upload fails for reasons
// other than authorization.
type UploadCLI struct {
	python string
	script string
	logger arbor.ILogger
}

func NewUploadCLI(cfg *config.UploadConfig, logger arbor.ILogger) *UploadCLI {
	return &UploadCLI{python: cfg.Python, script: cfg.Script, logger: logger}
}

// Args builds the uploader command line.
func (u *UploadCLI) Args(filePath string, meta model.VideoMetadata) []string {
	args := []string{u.script, "--file", filePath, "--title", meta.Title, "--description", meta.Description}
	if len(meta.Tags) > 0 {
		args = append(args, "--tags", strings.Join(meta.Tags, ","))
	}
	return args
}

// Publish runs the uploader and returns the video id it prints.
func (u *UploadCLI) Publish(ctx context.Context, filePath string, meta model.VideoMetadata) (string, error) {
	cmd := exec.CommandContext(ctx, u.python, u.Args(filePath, meta)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	u.logger.Info().Str("file", filePath).Msg("Uploading through alternate uploader")

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("alternate uploader failed: %w: %s", err, tail(stderr.String(), 800))
	}
	return ParseUploaderOutput(stdout.Bytes())
}

// ParseUploaderOutput finds the {"videoId": ...} object in the uploader's
// stdout. Scripts may log before it, so the last JSON line wins.
func ParseUploaderOutput(out []byte) (string, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var result struct {
			VideoID string `json:"videoId"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &result); err != nil {
			continue
		}
		if result.Error != "" {
			return "", fmt.Errorf("alternate uploader: %s", result.Error)
		}
		if result.VideoID != "" {
			return result.VideoID, nil
		}
	}
	return "", fmt.Errorf("alternate uploader printed no video id")
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
