package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/client"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/store"
)

const (
	TaskTypeRender = "render:process"
	QueueRender    = "render"
)

// Dispatcher hands a persisted job to whatever runs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *model.Job) error
}

// RenderService accepts render requests and answers status queries
type RenderService struct {
	jobs       *store.JobStore
	contexts   *ContextService
	dispatcher Dispatcher
	provider   model.Provider
	mirror     client.ArtifactMirror
	logger     arbor.ILogger
}

// NewRenderService creates the orchestrator. provider is fixed for the
// lifetime of the process; mirror may be nil.
func NewRenderService(jobs *store.JobStore, contexts *ContextService, dispatcher Dispatcher, provider model.Provider, mirror client.ArtifactMirror, logger arbor.ILogger) *RenderService {
	return &RenderService{
		jobs:       jobs,
		contexts:   contexts,
		dispatcher: dispatcher,
		provider:   provider,
		mirror:     mirror,
		logger:     logger,
	}
}

// Provider is the backend new jobs are assigned to.
func (s *RenderService) Provider() model.Provider {
	return s.provider
}

// Submit persists a pending job and dispatches it. It never waits for the
// render.
func (s *RenderService) Submit(ctx context.Context, req *model.RenderStartRequest) (*model.RenderStartResponse, error) {
	params, customStyle, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Create(ctx, params, s.provider, BuildPrompt(params, customStyle))
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to dispatch render job")
		if _, ferr := s.jobs.MarkFailed(ctx, job.ID, "dispatch failed: "+err.Error()); ferr != nil {
			s.logger.Error().Err(ferr).Str("job_id", job.ID).Msg("Failed to mark job as failed")
		}
		return nil, fmt.Errorf("failed to dispatch job: %w", err)
	}

	s.logger.Info().Str("job_id", job.ID).Str("provider", string(job.Provider)).Msg("Render job accepted")

	return &model.RenderStartResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Provider:  job.Provider,
		CreatedAt: job.CreatedAt,
	}, nil
}

// Status returns the job as last written.
func (s *RenderService) Status(ctx context.Context, jobID string) (*model.Job, error) {
	return s.jobs.Get(ctx, jobID)
}

// SignedMirrorURL returns a temporary link to the mirrored copy of a
// succeeded job.
func (s *RenderService) SignedMirrorURL(ctx context.Context, jobID string, expiry time.Duration) (string, error) {
	if s.mirror == nil {
		return "", fmt.Errorf("artifact mirror: %w", model.ErrNotConfigured)
	}
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != model.JobStatusSucceeded || job.MirrorURL == "" {
		return "", model.ErrJobNotReady
	}
	return s.mirror.GetSignedURL(ctx, s.mirror.ObjectKey(job.Artifact), expiry)
}

// resolve fills the request from the saved project context, then from
// the defaults.
func (s *RenderService) resolve(ctx context.Context, req *model.RenderStartRequest) (model.JobParams, string, error) {
	saved := &model.ProjectContext{}
	if s.contexts != nil {
		pc, err := s.contexts.Load(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Saved project context unavailable")
		} else {
			saved = pc
		}
	}

	params := model.JobParams{
		Script:   firstNonEmpty(req.Script, saved.Script),
		StyleID:  firstNonEmpty(req.StyleID, saved.StyleID, model.DefaultStyleID),
		Audience: firstNonEmpty(req.Audience, saved.Audience, model.DefaultAudience),
	}
	if params.Script == "" {
		return params, "", fmt.Errorf("%w: a script is required", model.ErrEmptyInput)
	}

	customStyle := strings.TrimSpace(req.CustomStyle)
	if customStyle == "" && req.StyleID == "" {
		customStyle = saved.CustomStyle
	}
	return params, customStyle, nil
}

// BuildPrompt renders the generator prompt for params.
func BuildPrompt(params model.JobParams, customStyle string) string {
	styleText := params.StyleID
	if customStyle != "" {
		styleText = fmt.Sprintf("%s (%s)", params.StyleID, customStyle)
	}
	return fmt.Sprintf("Create a %s short video (%ds) for %s. Script guidelines:\n%s",
		styleText, model.VideoSeconds, params.Audience, params.Script)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// AsynqDispatcher queues jobs for a worker process
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

// Dispatch enqueues the job. Tasks are never retried so a job runs at most
// once.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, job *model.Job) error {
	task, err := NewRenderTask(job)
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueRender),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// NewRenderTask builds the queued task for job.
func NewRenderTask(job *model.Job) (*asynq.Task, error) {
	data, err := json.Marshal(model.RenderTaskPayload{JobID: job.ID, Provider: job.Provider})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRender, data), nil
}
