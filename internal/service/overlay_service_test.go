package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortsmith/api/internal/logger"
	"github.com/shortsmith/api/internal/media"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/store"
)

type fakeSynth struct {
	texts []string
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.texts = append(f.texts, text)
	return []byte("mp3:" + text), nil
}

type fakeMuxer struct {
	calls   int
	seconds int
}

func (f *fakeMuxer) Mux(_ context.Context, videoPath, audioPath string, seconds int, outPath string) error {
	f.calls++
	f.seconds = seconds
	return os.WriteFile(outPath, []byte("voiced"), 0o644)
}

type overlayFixture struct {
	svc   *OverlayService
	jobs  *store.JobStore
	lib   *media.Library
	synth *fakeSynth
	muxer *fakeMuxer
}

func newOverlayFixture(t *testing.T) *overlayFixture {
	t.Helper()
	lib, err := media.NewLibrary(t.TempDir())
	require.NoError(t, err)
	f := &overlayFixture{
		jobs:  store.NewJobStore(store.NewMemoryKV()),
		lib:   lib,
		synth: &fakeSynth{},
		muxer: &fakeMuxer{},
	}
	f.svc = NewOverlayService(f.jobs, lib, f.synth, f.muxer, logger.Nop())
	return f
}

// succeededJob walks a job through the store and drops its video file.
func (f *overlayFixture) succeededJob(t *testing.T, script string) *model.Job {
	t.Helper()
	ctx := context.Background()
	job, err := f.jobs.Create(ctx, model.JobParams{Script: script}, model.ProviderProcess, "p")
	require.NoError(t, err)
	_, err = f.jobs.MarkRunning(ctx, job.ID)
	require.NoError(t, err)

	name := media.ArtifactName(job.ID)
	require.NoError(t, os.WriteFile(filepath.Join(f.lib.VideosDir(), name), []byte("video"), 0o644))
	job, err = f.jobs.MarkSucceeded(ctx, job.ID, name, media.VideoURL(name))
	require.NoError(t, err)
	return job
}

func TestOverlay_HookAndCTA(t *testing.T) {
	f := newOverlayFixture(t)
	job := f.succeededJob(t, "Hook: Stop scrolling. CTA: Try it now.")

	resp, err := f.svc.Overlay(context.Background(), job.Artifact)
	require.NoError(t, err)

	require.Equal(t, []string{"Stop scrolling. Try it now."}, f.synth.texts)
	assert.Equal(t, media.NarrationSeconds, f.muxer.seconds)
	assert.Equal(t, "/api/audio/generated_"+job.ID+".mp3", resp.AudioURL)
	assert.Equal(t, "/api/video/generated_"+job.ID+"_voiced.mp4", resp.URL)

	audio, err := os.ReadFile(filepath.Join(f.lib.AudioDir(), media.NarrationName(job.ID)))
	require.NoError(t, err)
	assert.Equal(t, "mp3:Stop scrolling. Try it now.", string(audio))
	assert.FileExists(t, filepath.Join(f.lib.VideosDir(), media.VoicedName(job.ID)))
}

func TestOverlay_PointsOnlyMakesNoExternalCall(t *testing.T) {
	f := newOverlayFixture(t)
	job := f.succeededJob(t, "Points:\n- one\n- two")

	_, err := f.svc.Overlay(context.Background(), job.Artifact)
	assert.ErrorIs(t, err, model.ErrEmptyInput)
	assert.Empty(t, f.synth.texts)
	assert.Zero(t, f.muxer.calls)
}

func TestOverlay_JobNotSucceeded(t *testing.T) {
	f := newOverlayFixture(t)
	job, err := f.jobs.Create(context.Background(), model.JobParams{Script: "Hook: hi"}, model.ProviderProcess, "p")
	require.NoError(t, err)

	_, err = f.svc.Overlay(context.Background(), media.ArtifactName(job.ID))
	assert.ErrorIs(t, err, model.ErrJobNotReady)
}

func TestOverlay_BadName(t *testing.T) {
	f := newOverlayFixture(t)

	_, err := f.svc.Overlay(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, model.ErrInvalidArtifact)

	_, err = f.svc.Overlay(context.Background(), media.ArtifactName("unknown"))
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestOverlay_EmptyNamePicksLatest(t *testing.T) {
	f := newOverlayFixture(t)
	job := f.succeededJob(t, "Hook: Latest one. CTA: Subscribe.")

	resp, err := f.svc.Overlay(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, media.VoicedName(job.ID), resp.Artifact)
}

func TestOverlay_EmptyNameWithoutVideos(t *testing.T) {
	f := newOverlayFixture(t)
	_, err := f.svc.Overlay(context.Background(), "")
	assert.ErrorIs(t, err, model.ErrInvalidArtifact)
}
