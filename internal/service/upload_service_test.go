package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/shortsmith/api/internal/config"
	"github.com/shortsmith/api/internal/logger"
	"github.com/shortsmith/api/internal/media"
	"github.com/shortsmith/api/internal/model"
)

type fakeTokens struct {
	tokens []string
	errs   []error
	calls  int
}

func (f *fakeTokens) EnsureFreshToken(context.Context) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.errs) {
		i = len(f.errs) - 1
	}
	if f.errs[i] != nil {
		return "", f.errs[i]
	}
	return f.tokens[i], nil
}

func tokensOK(tok string) *fakeTokens {
	return &fakeTokens{tokens: []string{tok}, errs: []error{nil}}
}

type scriptedUploader struct {
	results []error
	tokens  []string
	files   []string
}

func (u *scriptedUploader) Upload(_ context.Context, token, filePath, contentType string, meta model.VideoMetadata) (string, error) {
	i := len(u.tokens)
	u.tokens = append(u.tokens, token)
	u.files = append(u.files, filePath)
	if i < len(u.results) && u.results[i] != nil {
		return "", u.results[i]
	}
	return "vid-primary", nil
}

type fakePublisher struct {
	calls int
	err   error
	meta  model.VideoMetadata
}

func (p *fakePublisher) Publish(_ context.Context, filePath string, meta model.VideoMetadata) (string, error) {
	p.calls++
	p.meta = meta
	if p.err != nil {
		return "", p.err
	}
	return "vid-alt", nil
}

type fakeReauth struct {
	calls int
	err   error
}

func (r *fakeReauth) Reauthorize(context.Context) error {
	r.calls++
	return r.err
}

type uploadFixture struct {
	lib      *media.Library
	tokens   *fakeTokens
	primary  *scriptedUploader
	alt      *fakePublisher
	artifact string
}

func newUploadFixture(t *testing.T) *uploadFixture {
	t.Helper()
	lib, err := media.NewLibrary(t.TempDir())
	require.NoError(t, err)
	name := media.ArtifactName("abc")
	require.NoError(t, os.WriteFile(filepath.Join(lib.VideosDir(), name), []byte("video"), 0o644))
	return &uploadFixture{
		lib:      lib,
		tokens:   tokensOK("at"),
		primary:  &scriptedUploader{},
		alt:      &fakePublisher{},
		artifact: name,
	}
}

func (f *uploadFixture) service(reauth Reauthorizer) *UploadService {
	cfg := config.UploadConfig{Privacy: "public", PrimaryRetries: 1, RetryBackoff: time.Millisecond}
	svc := NewUploadService(f.tokens, f.primary, f.alt, reauth, f.lib, cfg, logger.Nop())
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func TestUpload_PrimarySuccess(t *testing.T) {
	f := newUploadFixture(t)
	res, err := f.service(nil).Upload(context.Background(), &model.UploadRequest{ArtifactRef: f.artifact, Title: "My short"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, model.UploadViaPrimary, res.Via)
	assert.Equal(t, "https://youtu.be/vid-primary", res.PublishedURL)
	assert.Equal(t, []string{"at"}, f.primary.tokens)
	assert.Zero(t, f.alt.calls)
}

func TestUpload_ExpiredWithoutRefreshRequiresAuthWithoutNetwork(t *testing.T) {
	f := newUploadFixture(t)
	f.tokens = &fakeTokens{errs: []error{fmt.Errorf("%w: token expired and no refresh token", model.ErrReauthorizationRequired)}}

	res, err := f.service(nil).Upload(context.Background(), &model.UploadRequest{ArtifactRef: f.artifact})
	require.NoError(t, err)

	assert.True(t, res.RequireAuth)
	assert.False(t, res.Success)
	assert.Empty(t, f.primary.tokens)
	assert.Zero(t, f.alt.calls)
}

func TestUpload_TransientErrorRetriedOnce(t *testing.T) {
	f := newUploadFixture(t)
	f.primary.results = []error{&googleapi.Error{Code: 503}}

	res, err := f.service(nil).Upload(context.Background(), &model.UploadRequest{ArtifactRef: f.artifact})
	require.NoError(t, err)
	assert.Equal(t, model.UploadViaPrimary, res.Via)
	assert.Len(t, f.primary.tokens, 2)
}

func TestUpload_PersistentTransientFallsBackToAlternate(t *testing.T) {
	f := newUploadFixture(t)
	f.primary.results = []error{&googleapi.Error{Code: 503}, &googleapi.Error{Code: 503}}

	res, err := f.service(nil).Upload(context.Background(), &model.UploadRequest{ArtifactRef: f.artifact, Tags: []string{"a", " ", "b"}})
	require.NoError(t, err)
	assert.Equal(t, model.UploadViaAlternate, res.Via)
	assert.Equal(t, "https://youtu.be/vid-alt", res.PublishedURL)
	assert.Len(t, f.primary.tokens, 2)
	assert.Equal(t, []string{"a", "b"}, f.alt.meta.Tags)
	assert.Equal(t, DefaultVideoTitle, f.alt.meta.Title)
}

func TestUpload_OtherErrorGoesStraightToAlternate(t *testing.T) {
	f := newUploadFixture(t)
	f.primary.results = []error{&googleapi.Error{Code: 400, Message: "bad metadata"}}

	res, err := f.service(nil).Upload(context.Background(), &model.UploadRequest{ArtifactRef: f.artifact})
	require.NoError(t, err)
	assert.Equal(t, model.UploadViaAlternate, res.Via)
	assert.Len(t, f.primary.tokens, 1)
}

func TestUpload_AuthErrorWithoutReauthorizer(t *testing.T) {
	f := newUploadFixture(t)
	f.primary.results = []error{&googleapi.Error{Code: 401}}

	res, err := f.service(nil).Upload(context.Background(), &model.UploadRequest{ArtifactRef: f.artifact})
	require.NoError(t, err)
	assert.True(t, res.RequireAuth)
	assert.Zero(t, f.alt.calls)
}

func TestUpload_AuthErrorReauthorizesAndRetriesOnce(t *testing.T) {
	f := newUploadFixture(t)
	f.tokens = &fakeTokens{tokens: []string{"old", "new"}, errs: []error{nil, nil}}
	f.primary.results = []error{&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "insufficientPermissions"}}}}
	reauth := &fakeReauth{}

	res, err := f.service(reauth).Upload(context.Background(), &model.UploadRequest{ArtifactRef: f.artifact})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, model.UploadViaPrimary, res.Via)
	assert.Equal(t, 1, reauth.calls)
	assert.Equal(t, []string{"old", "new"}, f.primary.tokens)
}

func TestUpload_ReauthorizationFails(t *testing.T) {
	f := newUploadFixture(t)
	f.tokens = &fakeTokens{errs: []error{model.ErrReauthorizationRequired}}
	reauth := &fakeReauth{err: errors.New("window closed")}

	res, err := f.service(reauth).Upload(context.Background(), &model.UploadRequest{ArtifactRef: f.artifact})
	require.NoError(t, err)
	assert.True(t, res.RequireAuth)
	assert.Equal(t, 1, reauth.calls)
	assert.Empty(t, f.primary.tokens)
}

func TestUpload_BothPathsFail(t *testing.T) {
	f := newUploadFixture(t)
	f.primary.results = []error{errors.New("disk quota")}
	f.alt.err = errors.New("script crashed")

	_, err := f.service(nil).Upload(context.Background(), &model.UploadRequest{ArtifactRef: f.artifact})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk quota")
	assert.Contains(t, err.Error(), "script crashed")
}

func TestUpload_ResolvesArtifactReferences(t *testing.T) {
	f := newUploadFixture(t)
	svc := f.service(nil)
	ctx := context.Background()

	_, err := svc.Upload(ctx, &model.UploadRequest{VideoURL: "/api/video/" + f.artifact})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.lib.VideosDir(), f.artifact), f.primary.files[0])

	_, err = svc.Upload(ctx, &model.UploadRequest{ArtifactRef: "missing.mp4"})
	assert.ErrorIs(t, err, model.ErrInvalidArtifact)

	_, err = svc.Upload(ctx, &model.UploadRequest{ArtifactRef: "../secrets.mp4"})
	assert.ErrorIs(t, err, model.ErrInvalidArtifact)

	_, err = svc.Upload(ctx, &model.UploadRequest{})
	assert.ErrorIs(t, err, model.ErrInvalidArtifact)
}

func TestUpload_DownloadsRemoteArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote-video"))
	}))
	defer srv.Close()

	f := newUploadFixture(t)
	_, err := f.service(nil).Upload(context.Background(), &model.UploadRequest{ArtifactRef: srv.URL + "/clip.mp4"})
	require.NoError(t, err)

	require.Len(t, f.primary.files, 1)
	assert.NoFileExists(t, f.primary.files[0])
}
