package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/client"
	"github.com/shortsmith/api/internal/config"
	"github.com/shortsmith/api/internal/media"
	"github.com/shortsmith/api/internal/model"
)

// DefaultVideoTitle is used when an upload request has no title.
const DefaultVideoTitle = "Generated Video"

// TokenProvider hands out a usable access token.
type TokenProvider interface {
	EnsureFreshToken(ctx context.Context) (string, error)
}

// VideoUploader is the primary, API based upload path.
type VideoUploader interface {
	Upload(ctx context.Context, accessToken, filePath, contentType string, meta model.VideoMetadata) (string, error)
}

// Reauthorizer gets the user through the consent flow again. It returns
// nil once a new token is stored.
type Reauthorizer interface {
	Reauthorize(ctx context.Context) error
}

// UploadService publishes artifacts to YouTube with a primary path, a
// reauthorization step and an alternate uploader.
type UploadService struct {
	tokens     TokenProvider
	primary    VideoUploader
	alternate  client.VideoPublisher
	reauth     Reauthorizer
	library    *media.Library
	cfg        config.UploadConfig
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	logger     arbor.ILogger
}

// NewUploadService creates the upload service. reauth may be nil, in which
// case an expired connection is reported back to the caller.
func NewUploadService(tokens TokenProvider, primary VideoUploader, alternate client.VideoPublisher, reauth Reauthorizer, library *media.Library, cfg config.UploadConfig, logger arbor.ILogger) *UploadService {
	return &UploadService{
		tokens:     tokens,
		primary:    primary,
		alternate:  alternate,
		reauth:     reauth,
		library:    library,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		sleep:      sleepContext,
		logger:     logger,
	}
}

func needsAuth() *model.UploadResult {
	return &model.UploadResult{Success: false, RequireAuth: true}
}

func published(videoID string, via model.UploadPath) *model.UploadResult {
	return &model.UploadResult{
		Success:      true,
		VideoID:      videoID,
		PublishedURL: client.PublishedURL(videoID),
		Via:          via,
	}
}

// Upload publishes the referenced artifact. A result with RequireAuth set
// means the user must reconnect before anything can be uploaded.
func (s *UploadService) Upload(ctx context.Context, req *model.UploadRequest) (*model.UploadResult, error) {
	filePath, cleanup, err := s.resolveArtifact(ctx, req.Ref())
	if err != nil {
		return nil, err
	}
	defer cleanup()

	meta := model.VideoMetadata{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Tags:        compactTags(req.Tags),
		Privacy:     s.cfg.Privacy,
	}
	if meta.Title == "" {
		meta.Title = DefaultVideoTitle
	}

	token, err := s.tokens.EnsureFreshToken(ctx)
	if errors.Is(err, model.ErrReauthorizationRequired) {
		if token, err = s.reauthorize(ctx, err); err != nil {
			return needsAuth(), nil
		}
	}

	var primaryErr error
	if err != nil {
		primaryErr = fmt.Errorf("token refresh: %w", err)
	} else {
		videoID, err := s.uploadPrimary(ctx, token, filePath, meta)
		if err == nil {
			return published(videoID, model.UploadViaPrimary), nil
		}
		primaryErr = err

		if client.IsAuthError(err) {
			if token, err = s.reauthorize(ctx, err); err != nil {
				return needsAuth(), nil
			}
			videoID, err = s.uploadPrimary(ctx, token, filePath, meta)
			if err == nil {
				return published(videoID, model.UploadViaPrimary), nil
			}
			if client.IsAuthError(err) {
				return needsAuth(), nil
			}
			primaryErr = err
		}
	}

	s.logger.Warn().Err(primaryErr).Msg("Primary upload failed, using alternate uploader")

	videoID, err := s.alternate.Publish(ctx, filePath, meta)
	if err != nil {
		return nil, fmt.Errorf("upload failed: primary: %v; alternate: %w", primaryErr, err)
	}
	return published(videoID, model.UploadViaAlternate), nil
}

// reauthorize runs the reauthorizer when there is one and returns a fresh
// token. cause is returned unchanged when there is nothing to run.
func (s *UploadService) reauthorize(ctx context.Context, cause error) (string, error) {
	if s.reauth == nil {
		return "", cause
	}
	s.logger.Info().Err(cause).Msg("Upload needs reauthorization")
	if err := s.reauth.Reauthorize(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Reauthorization did not complete")
		return "", err
	}
	return s.tokens.EnsureFreshToken(ctx)
}

// uploadPrimary retries transient failures up to PrimaryRetries times.
func (s *UploadService) uploadPrimary(ctx context.Context, token, filePath string, meta model.VideoMetadata) (string, error) {
	contentType := media.ContentType(filePath)
	for attempt := 0; ; attempt++ {
		videoID, err := s.primary.Upload(ctx, token, filePath, contentType, meta)
		if err == nil {
			return videoID, nil
		}
		if !client.IsTransient(err) || attempt >= s.cfg.PrimaryRetries {
			return "", err
		}
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Transient upload error, retrying")
		if serr := s.sleep(ctx, s.cfg.RetryBackoff); serr != nil {
			return "", err
		}
	}
}

// resolveArtifact turns a bare name, a /api/video/ path or an http(s) URL
// into a local file. cleanup removes any temporary download.
func (s *UploadService) resolveArtifact(ctx context.Context, ref string) (string, func(), error) {
	noop := func() {}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", noop, fmt.Errorf("%w: artifactRef is required", model.ErrInvalidArtifact)
	}

	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return s.download(ctx, u)
	}

	name := ref
	if strings.HasPrefix(name, media.VideoRoute) {
		unescaped, err := url.PathUnescape(strings.TrimPrefix(name, media.VideoRoute))
		if err != nil {
			return "", noop, fmt.Errorf("%w: %q", model.ErrInvalidArtifact, ref)
		}
		name = unescaped
	}

	p, err := s.library.VideoPath(name)
	if err != nil {
		return "", noop, err
	}
	if !media.Exists(p) {
		return "", noop, fmt.Errorf("%w: %s does not exist", model.ErrInvalidArtifact, name)
	}
	return p, noop, nil
}

func (s *UploadService) download(ctx context.Context, u *url.URL) (string, func(), error) {
	noop := func() {}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", noop, fmt.Errorf("%w: %v", model.ErrInvalidArtifact, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", noop, fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", noop, fmt.Errorf("failed to download video: status %d", resp.StatusCode)
	}

	ext := path.Ext(u.Path)
	if ext == "" {
		ext = ".mp4"
	}
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	_, err = io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to download video: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

func compactTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OAuthNotifier tells connected clients that consent is needed.
type OAuthNotifier interface {
	BroadcastOAuthRequired(state, authorizationURL string)
}

// InteractiveReauthorizer starts a new authorization, pushes its URL to the
// browser and waits for the window to report back.
type InteractiveReauthorizer struct {
	connector *ConnectorService
	notifier  OAuthNotifier
	wait      time.Duration
	logger    arbor.ILogger
}

func NewInteractiveReauthorizer(connector *ConnectorService, notifier OAuthNotifier, wait time.Duration, logger arbor.ILogger) *InteractiveReauthorizer {
	return &InteractiveReauthorizer{connector: connector, notifier: notifier, wait: wait, logger: logger}
}

func (r *InteractiveReauthorizer) Reauthorize(ctx context.Context) error {
	start, err := r.connector.StartAuthorization(ctx)
	if err != nil {
		return err
	}
	r.notifier.BroadcastOAuthRequired(start.State, start.AuthorizationURL)

	waitCtx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	res, err := r.connector.Relay().Await(waitCtx, start.State)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrReauthorizationRequired, err)
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", model.ErrReauthorizationRequired, res.Error)
	}
	r.logger.Info().Str("channel", res.IdentityName).Msg("Reauthorization completed")
	return nil
}
