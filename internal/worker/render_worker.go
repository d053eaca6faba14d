package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/client"
	"github.com/shortsmith/api/internal/media"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/store"
	"github.com/shortsmith/api/internal/websocket"
)

const (
	storeAttempts = 3
	storeBackoff  = 200 * time.Millisecond
)

// RenderWorker supervises render jobs from pending to a terminal state.
type RenderWorker struct {
	jobs     *store.JobStore
	adapters map[model.Provider]Adapter
	library  *media.Library
	mirror   client.ArtifactMirror
	hub      *websocket.Hub
	logger   arbor.ILogger
	backoff  time.Duration
}

// NewRenderWorker creates a new render worker. mirror may be nil.
func NewRenderWorker(jobs *store.JobStore, library *media.Library, mirror client.ArtifactMirror, hub *websocket.Hub, logger arbor.ILogger, adapters ...Adapter) *RenderWorker {
	w := &RenderWorker{
		jobs:     jobs,
		adapters: make(map[model.Provider]Adapter, len(adapters)),
		library:  library,
		mirror:   mirror,
		hub:      hub,
		logger:   logger,
		backoff:  storeBackoff,
	}
	for _, a := range adapters {
		w.adapters[a.Kind()] = a
	}
	return w
}

// ProcessTask handles a queued render task
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.RenderTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}
	w.Execute(ctx, payload.JobID)
	return nil
}

// Execute drives one job to completion. Failures are recorded on the job,
// never returned.
func (w *RenderWorker) Execute(ctx context.Context, jobID string) {
	log := w.logger.WithCorrelationId(jobID)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("Render supervisor panicked")
			w.fail(ctx, jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Msg("Cannot load render job")
		return
	}
	if job.Status.IsTerminal() {
		log.Warn().Str("status", string(job.Status)).Msg("Job already finished, skipping")
		return
	}

	adapter, ok := w.adapters[job.Provider]
	if !ok {
		w.fail(ctx, jobID, fmt.Sprintf("no adapter for provider %q", job.Provider))
		return
	}

	log.Info().Str("provider", string(job.Provider)).Msg("Starting render job")

	run, err := adapter.Start(ctx, job)
	if err != nil {
		w.fail(ctx, jobID, err.Error())
		return
	}

	running := false
	for {
		state, err := adapter.IsTerminal(ctx, run)
		if err != nil {
			w.fail(ctx, jobID, err.Error())
			return
		}

		if (state.Started || state.succeeded()) && !running {
			if !w.markRunning(ctx, jobID) {
				return
			}
			running = true
		}

		if state.Terminal {
			if !state.succeeded() {
				w.fail(ctx, jobID, state.Failure)
				return
			}
			w.succeed(ctx, adapter, run)
			return
		}

		select {
		case <-ctx.Done():
			w.fail(context.WithoutCancel(ctx), jobID, "render interrupted: "+ctx.Err().Error())
			return
		case <-time.After(adapter.PollInterval()):
		}
	}
}

// persist runs a job state write, retrying transient store errors. A job
// that is already terminal is never retried.
func (w *RenderWorker) persist(ctx context.Context, jobID string, write func() (*model.Job, error)) (*model.Job, error) {
	var err error
	for attempt := 1; attempt <= storeAttempts; attempt++ {
		var job *model.Job
		if job, err = write(); err == nil {
			return job, nil
		}
		if errors.Is(err, model.ErrJobTerminal) || errors.Is(err, model.ErrJobNotFound) {
			return nil, err
		}
		w.logger.Warn().Err(err).Str("job_id", jobID).Int("attempt", attempt).Msg("Job store write failed")
		if attempt < storeAttempts {
			select {
			case <-ctx.Done():
				return nil, err
			case <-time.After(w.backoff):
			}
		}
	}
	return nil, err
}

// markRunning reports whether the job may keep going. When the running
// state cannot be recorded the job is failed instead.
func (w *RenderWorker) markRunning(ctx context.Context, jobID string) bool {
	_, err := w.persist(ctx, jobID, func() (*model.Job, error) { return w.jobs.MarkRunning(ctx, jobID) })
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to mark job running")
		w.fail(ctx, jobID, "failed to record job start: "+err.Error())
		return false
	}
	w.hub.BroadcastProgress(jobID, model.JobStatusRunning, "rendering")
	return true
}

func (w *RenderWorker) succeed(ctx context.Context, adapter Adapter, run *Run) {
	name, err := adapter.MaterializeResult(ctx, run)
	if err != nil {
		w.fail(ctx, run.JobID, err.Error())
		return
	}

	job, err := w.persist(ctx, run.JobID, func() (*model.Job, error) {
		return w.jobs.MarkSucceeded(ctx, run.JobID, name, media.VideoURL(name))
	})
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", run.JobID).Msg("Failed to mark job succeeded")
		w.fail(ctx, run.JobID, "failed to record result: "+err.Error())
		return
	}
	w.logger.Info().Str("job_id", run.JobID).Str("artifact", name).Msg("Render job succeeded")

	if mirrored := w.mirrorArtifact(ctx, job); mirrored != nil {
		job = mirrored
	}
	w.hub.BroadcastComplete(job)
}

// mirrorArtifact copies the video to object storage. Failure leaves the
// job succeeded with its local artifact.
func (w *RenderWorker) mirrorArtifact(ctx context.Context, job *model.Job) *model.Job {
	if w.mirror == nil {
		return nil
	}
	path, err := w.library.VideoPath(job.Artifact)
	if err != nil {
		return nil
	}

	url, err := w.mirror.MirrorFile(ctx, path, media.ContentType(path))
	if err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Artifact mirror failed")
		return nil
	}
	updated, err := w.jobs.SetMirrorURL(ctx, job.ID, url)
	if err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to record mirror URL")
		return nil
	}
	return updated
}

func (w *RenderWorker) fail(ctx context.Context, jobID, msg string) {
	w.logger.Warn().Str("job_id", jobID).Str("reason", msg).Msg("Render job failed")
	_, err := w.persist(ctx, jobID, func() (*model.Job, error) { return w.jobs.MarkFailed(ctx, jobID, msg) })
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to mark job as failed")
		return
	}
	w.hub.BroadcastError(jobID, "RENDER_FAILED", msg)
}

// InlineDispatcher runs jobs on goroutines of this process.
type InlineDispatcher struct {
	worker *RenderWorker
	wg     sync.WaitGroup
}

func NewInlineDispatcher(worker *RenderWorker) *InlineDispatcher {
	return &InlineDispatcher{worker: worker}
}

// Dispatch starts the supervisor. The request context only carries values
// into it; its cancellation does not stop the job.
func (d *InlineDispatcher) Dispatch(ctx context.Context, job *model.Job) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.worker.Execute(context.WithoutCancel(ctx), job.ID)
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
