package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/shortsmith/api/internal/config"
	"github.com/shortsmith/api/internal/logger"
	"github.com/shortsmith/api/internal/model"
)

func TestSoraClient_CreatePollDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("api-key"))
		assert.Equal(t, "preview", r.URL.Query().Get("api-version"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/openai/v1/video/generations/jobs":
			var req CreateVideoJobRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 10, req.NSeconds)
			fmt.Fprint(w, `{"id":"task_1","status":"queued"}`)
		case r.URL.Path == "/openai/v1/video/generations/jobs/task_1":
			fmt.Fprint(w, `{"id":"task_1","status":"Succeeded","generations":[{"id":"gen_1"}]}`)
		case r.URL.Path == "/openai/v1/video/generations/gen_1/content/video":
			w.Write([]byte("mp4-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewSoraClient(&config.SoraConfig{Endpoint: srv.URL, APIKey: "k", APIVersion: "preview"}, logger.Nop())
	require.True(t, c.IsConfigured())

	ctx := context.Background()
	job, err := c.CreateVideoJob(ctx, &CreateVideoJobRequest{Model: "sora", Prompt: "p", NSeconds: 10})
	require.NoError(t, err)
	assert.Equal(t, "task_1", job.ID)

	job, err = c.GetVideoJob(ctx, "task_1")
	require.NoError(t, err)
	assert.Equal(t, VideoJobSucceeded, job.Status)
	require.Len(t, job.Generations, 1)

	var buf bytes.Buffer
	n, err := c.DownloadVideo(ctx, "gen_1", &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)
	assert.Equal(t, "mp4-bytes", buf.String())
}

func TestSoraClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "overloaded")
	}))
	defer srv.Close()

	c := NewSoraClient(&config.SoraConfig{Endpoint: srv.URL, APIKey: "k"}, logger.Nop())
	_, err := c.GetVideoJob(context.Background(), "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, IsTransient(err))
}

func TestElevenLabsClient_Synthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "xi", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))

		body, _ := io.ReadAll(r.Body)
		var req SpeechRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "Hello there.", req.Text)
		assert.Equal(t, "eleven_multilingual_v2", req.ModelID)
		assert.True(t, req.VoiceSettings.UseSpeakerBoost)

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	c := NewElevenLabsClient(&config.VoiceConfig{
		APIKey:  "xi",
		BaseURL: srv.URL,
		VoiceID: "voice-1",
		ModelID: "eleven_multilingual_v2",
	}, logger.Nop())

	audio, err := c.Synthesize(context.Background(), "Hello there.")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), audio)
}

func TestElevenLabsClient_NotConfigured(t *testing.T) {
	c := NewElevenLabsClient(&config.VoiceConfig{BaseURL: "http://unused"}, logger.Nop())
	_, err := c.Synthesize(context.Background(), "text")
	assert.ErrorIs(t, err, model.ErrNotConfigured)
}

func TestChatClient_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "sys", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, 400, req.MaxTokens)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		fmt.Fprint(w, `{"id":"c1","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"  {\"caption\":\"hi\"}\n"}}]}`)
	}))
	defer srv.Close()

	c := NewChatClient(&config.LLMConfig{BaseURL: srv.URL + "/v1/", APIKey: "k", Model: "gpt-4o"}, logger.Nop())
	require.True(t, c.IsConfigured())

	out, err := c.ChatCompletion(context.Background(), "sys", "usr", CompletionOptions{Temperature: 0.7, MaxTokens: 400, JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"caption":"hi"}`, out)
}

func TestChatClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"slow down"}`)
	}))
	defer srv.Close()

	c := NewChatClient(&config.LLMConfig{BaseURL: srv.URL, APIKey: "k"}, logger.Nop())
	_, err := c.ChatCompletion(context.Background(), "s", "u", CompletionOptions{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, apiErr.Transient())

	assert.False(t, NewChatClient(&config.LLMConfig{}, logger.Nop()).IsConfigured())
}

func TestYouTubeClient_FetchIdentityAndChannelInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/youtube/v3/channels", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("mine"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"id":"UC1","snippet":{"title":"My Channel"},
			"statistics":{"subscriberCount":"12","videoCount":"3","viewCount":"99"}}]}`)
	}))
	defer srv.Close()

	c := NewYouTubeClient(srv.URL+"/", logger.Nop())

	id, err := c.FetchIdentity(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, &model.Identity{ChannelID: "UC1", ChannelName: "My Channel"}, id)

	info, err := c.ChannelInfo(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "My Channel", info.Title)
	assert.EqualValues(t, 12, info.SubscriberCount)
	assert.EqualValues(t, 99, info.ViewCount)
}

func TestYouTubeClient_NoChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer srv.Close()

	_, err := NewYouTubeClient(srv.URL+"/", logger.Nop()).FetchIdentity(context.Background(), "tok")
	assert.Error(t, err)
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unauthorized", &googleapi.Error{Code: 401}, true},
		{"insufficient scope", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "insufficientPermissions"}}}, true},
		{"quota", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}}, false},
		{"invalid grant", &oauth2.RetrieveError{ErrorCode: "invalid_grant", Response: &http.Response{StatusCode: 400}}, true},
		{"wrapped reauth", fmt.Errorf("upload: %w", model.ErrReauthorizationRequired), true},
		{"server error", &googleapi.Error{Code: 500}, false},
		{"plain", errors.New("disk full"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthError(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&googleapi.Error{Code: 503}))
	assert.True(t, IsTransient(&googleapi.Error{Code: 429}))
	assert.True(t, IsTransient(&APIError{StatusCode: 502}))
	assert.False(t, IsTransient(&googleapi.Error{Code: 400}))
	assert.False(t, IsTransient(&APIError{StatusCode: 404}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}

func TestParseUploaderOutput(t *testing.T) {
	id, err := ParseUploaderOutput([]byte("Uploading...\n50%\n{\"videoId\": \"abc123\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	_, err = ParseUploaderOutput([]byte("{\"error\": \"quota\"}"))
	assert.ErrorContains(t, err, "quota")

	_, err = ParseUploaderOutput([]byte("done"))
	assert.Error(t, err)
}

func TestUploadCLI_Args(t *testing.T) {
	cli := NewUploadCLI(&config.UploadConfig{Python: "python", Script: "up.py"}, logger.Nop())
	args := cli.Args("/tmp/v.mp4", model.VideoMetadata{Title: "T", Description: "D", Tags: []string{"a", "b"}})
	assert.Equal(t, []string{"up.py", "--file", "/tmp/v.mp4", "--title", "T", "--description", "D", "--tags", "a,b"}, args)
}

func TestPublishedURL(t *testing.T) {
	assert.Equal(t, "https://youtu.be/xyz", PublishedURL("xyz"))
}
