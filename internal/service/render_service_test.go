package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortsmith/api/internal/logger"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/store"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []*model.Job
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job *model.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func newRenderService(t *testing.T, d Dispatcher) (*RenderService, *store.JobStore, store.KV) {
	t.Helper()
	kv := store.NewMemoryKV()
	jobs := store.NewJobStore(kv)
	svc := NewRenderService(jobs, NewContextService(kv), d, model.ProviderProcess, nil, logger.Nop())
	return svc, jobs, kv
}

func TestBuildPrompt(t *testing.T) {
	params := model.JobParams{StyleID: "cinematic", Audience: "founders", Script: "Hook: hi"}
	assert.Equal(t,
		"Create a cinematic short video (10s) for founders. Script guidelines:\nHook: hi",
		BuildPrompt(params, ""))
	assert.Equal(t,
		"Create a cinematic (neon noir) short video (10s) for founders. Script guidelines:\nHook: hi",
		BuildPrompt(params, "neon noir"))
}

func TestSubmit_PersistsPendingJobAndDispatches(t *testing.T) {
	d := &recordingDispatcher{}
	svc, jobs, _ := newRenderService(t, d)

	resp, err := svc.Submit(context.Background(), &model.RenderStartRequest{Script: "Hook: Stop scrolling."})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, resp.Status)
	assert.Equal(t, model.ProviderProcess, resp.Provider)

	job, err := jobs.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultStyleID, job.Used.StyleID)
	assert.Equal(t, model.DefaultAudience, job.Used.Audience)
	assert.Contains(t, job.Prompt, "for general audience")

	require.Len(t, d.jobs, 1)
	assert.Equal(t, resp.JobID, d.jobs[0].ID)
}

func TestSubmit_SameInputsGiveDistinctJobs(t *testing.T) {
	svc, _, _ := newRenderService(t, &recordingDispatcher{})
	req := &model.RenderStartRequest{Script: "same"}

	a, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	b, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, a.JobID, b.JobID)
}

func TestSubmit_FallsBackToSavedContext(t *testing.T) {
	svc, jobs, kv := newRenderService(t, &recordingDispatcher{})
	ctxSvc := NewContextService(kv)
	ctx := context.Background()

	require.NoError(t, ctxSvc.SaveScript(ctx, "Saved script"))
	require.NoError(t, ctxSvc.SaveStyle(ctx, "anime", "pastel"))
	require.NoError(t, ctxSvc.SaveOnboarding(ctx, &model.SaveOnboardingRequest{TargetAudience: "gamers"}))

	resp, err := svc.Submit(ctx, &model.RenderStartRequest{})
	require.NoError(t, err)

	job, _ := jobs.Get(ctx, resp.JobID)
	assert.Equal(t, model.JobParams{StyleID: "anime", Audience: "gamers", Script: "Saved script"}, job.Used)
	assert.Equal(t, "Create a anime (pastel) short video (10s) for gamers. Script guidelines:\nSaved script", job.Prompt)
}

func TestSubmit_RequestOverridesSavedStyle(t *testing.T) {
	svc, jobs, kv := newRenderService(t, &recordingDispatcher{})
	ctx := context.Background()
	require.NoError(t, NewContextService(kv).SaveStyle(ctx, "anime", "pastel"))

	resp, err := svc.Submit(ctx, &model.RenderStartRequest{Script: "s", StyleID: "documentary"})
	require.NoError(t, err)

	job, _ := jobs.Get(ctx, resp.JobID)
	assert.Equal(t, "documentary", job.Used.StyleID)
	assert.NotContains(t, job.Prompt, "pastel")
}

func TestSubmit_EmptyScriptCreatesNoJob(t *testing.T) {
	d := &recordingDispatcher{}
	svc, _, kv := newRenderService(t, d)

	_, err := svc.Submit(context.Background(), &model.RenderStartRequest{Script: "   "})
	assert.ErrorIs(t, err, model.ErrEmptyInput)

	keys, err := kv.Keys(context.Background(), "job:")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, d.jobs)
}

func TestSubmit_DispatchFailureMarksJobFailed(t *testing.T) {
	svc, jobs, kv := newRenderService(t, &recordingDispatcher{err: errors.New("queue down")})

	_, err := svc.Submit(context.Background(), &model.RenderStartRequest{Script: "s"})
	require.Error(t, err)

	keys, _ := kv.Keys(context.Background(), "job:")
	require.Len(t, keys, 1)
	job, err := jobs.Get(context.Background(), keys[0][len("job:"):])
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
}

func TestStatus_NotFound(t *testing.T) {
	svc, _, _ := newRenderService(t, &recordingDispatcher{})
	_, err := svc.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrJobNotFound)
}

type stubMirror struct{}

func (stubMirror) MirrorFile(context.Context, string, string) (string, error) { return "", nil }
func (stubMirror) ObjectKey(name string) string                              { return "videos/" + name }
func (stubMirror) GetSignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	return "https://signed.example/" + key + "?ttl=" + expiry.String(), nil
}

func TestSignedMirrorURL(t *testing.T) {
	kv := store.NewMemoryKV()
	jobs := store.NewJobStore(kv)
	ctx := context.Background()

	noMirror := NewRenderService(jobs, nil, &recordingDispatcher{}, model.ProviderSora, nil, logger.Nop())
	_, err := noMirror.SignedMirrorURL(ctx, "x", time.Hour)
	assert.ErrorIs(t, err, model.ErrNotConfigured)

	svc := NewRenderService(jobs, nil, &recordingDispatcher{}, model.ProviderSora, stubMirror{}, logger.Nop())
	job, err := jobs.Create(ctx, model.JobParams{Script: "s"}, model.ProviderSora, "p")
	require.NoError(t, err)

	_, err = svc.SignedMirrorURL(ctx, job.ID, time.Hour)
	assert.ErrorIs(t, err, model.ErrJobNotReady)

	_, err = jobs.MarkRunning(ctx, job.ID)
	require.NoError(t, err)
	_, err = jobs.MarkSucceeded(ctx, job.ID, "generated_"+job.ID+".mp4", "/api/video/generated_"+job.ID+".mp4")
	require.NoError(t, err)
	_, err = jobs.SetMirrorURL(ctx, job.ID, "https://cdn.example/videos/generated_"+job.ID+".mp4")
	require.NoError(t, err)

	u, err := svc.SignedMirrorURL(ctx, job.ID, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/videos/generated_"+job.ID+".mp4?ttl=1h0m0s", u)
}

func TestNewRenderTask(t *testing.T) {
	task, err := NewRenderTask(&model.Job{ID: "j1", Provider: model.ProviderSora})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeRender, task.Type())
	assert.JSONEq(t, `{"jobId":"j1","provider":"sora"}`, string(task.Payload()))
}

func TestContextService_ClearsCustomStyle(t *testing.T) {
	svc := NewContextService(store.NewMemoryKV())
	ctx := context.Background()

	require.NoError(t, svc.SaveStyle(ctx, "anime", "pastel"))
	require.NoError(t, svc.SaveStyle(ctx, "noir", ""))

	pc, err := svc.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "noir", pc.StyleID)
	assert.Empty(t, pc.CustomStyle)
}
