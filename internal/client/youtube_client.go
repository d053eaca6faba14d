package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/shortsmith/api/internal/model"
)

// PublishedURL is the short link of an uploaded video.
func PublishedURL(videoID string) string {
	return "https://youtu.be/" + videoID
}

// YouTubeClient wraps the YouTube Data API v3 for a given access token.
// Token refresh is the connector's job; this client only uses what it is given.
type YouTubeClient struct {
	endpoint string
	logger   arbor.ILogger
}

// NewYouTubeClient creates a client. endpoint overrides the API base URL
// and is empty in production.
func NewYouTubeClient(endpoint string, logger arbor.ILogger) *YouTubeClient {
	return &YouTubeClient{endpoint: endpoint, logger: logger}
}

func (c *YouTubeClient) service(ctx context.Context, accessToken string) (*youtube.Service, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

// FetchIdentity returns the channel the token belongs to.
func (c *YouTubeClient) FetchIdentity(ctx context.Context, accessToken string) (*model.Identity, error) {
	ch, err := c.mine(ctx, accessToken, "snippet")
	if err != nil {
		return nil, err
	}
	return &model.Identity{ChannelID: ch.Id, ChannelName: ch.Snippet.Title}, nil
}

// ChannelInfo returns the connected channel with statistics.
func (c *YouTubeClient) ChannelInfo(ctx context.Context, accessToken string) (*model.ChannelInfo, error) {
	ch, err := c.mine(ctx, accessToken, "snippet", "statistics")
	if err != nil {
		return nil, err
	}
	info := &model.ChannelInfo{ID: ch.Id, Title: ch.Snippet.Title}
	if ch.Statistics != nil {
		info.SubscriberCount = ch.Statistics.SubscriberCount
		info.VideoCount = ch.Statistics.VideoCount
		info.ViewCount = ch.Statistics.ViewCount
	}
	return info, nil
}

func (c *YouTubeClient) mine(ctx context.Context, accessToken string, parts ...string) (*youtube.Channel, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Channels.List(parts).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube channels.list: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return nil, fmt.Errorf("no channel found for this account")
	}
	return resp.Items[0], nil
}

// Upload publishes a local file and returns the new video id.
func (c *YouTubeClient) Upload(ctx context.Context, accessToken, filePath, contentType string, meta model.VideoMetadata) (string, error) {
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return "", err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	privacy := meta.Privacy
	if privacy == "" {
		privacy = "public"
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: privacy,
		},
	}

	c.logger.Info().Str("title", meta.Title).Str("privacy", privacy).Msg("Uploading video to YouTube")

	call := svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.Media(f, googleapi.ContentType(contentType))
	uploaded, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	if uploaded.Id == "" {
		return "", fmt.Errorf("youtube upload returned no video id")
	}
	return uploaded.Id, nil
}

// IsAuthError reports whether err means the token is missing, expired,
// revoked or lacks the upload scope.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrReauthorizationRequired) {
		return true
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return rerr.ErrorCode == "invalid_grant" || rerr.Response == nil || rerr.Response.StatusCode == http.StatusUnauthorized
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized {
			return true
		}
		if gerr.Code == http.StatusForbidden {
			for _, item := range gerr.Errors {
				switch item.Reason {
				case "insufficientPermissions", "authError", "forbidden":
					return true
				}
			}
			return strings.Contains(strings.ToLower(gerr.Message), "insufficient")
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "Login Required")
}

// IsTransient reports whether the same request may succeed if retried.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 {
			return true
		}
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "backendError":
				return true
			}
		}
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
