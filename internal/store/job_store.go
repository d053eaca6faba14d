package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shortsmith/api/internal/model"
)

const jobKeyPrefix = "job:"

// JobStore persists render jobs and guards their state machine. Each job
// has a single writer, its adapter; the per-job lock only serializes the
// read-modify-write inside this process.
type JobStore struct {
	kv    KV
	locks sync.Map
	now   func() time.Time
}

func NewJobStore(kv KV) *JobStore {
	return &JobStore{kv: kv, now: time.Now}
}

// Create persists a new pending job.
func (s *JobStore) Create(ctx context.Context, params model.JobParams, provider model.Provider, prompt string) (*model.Job, error) {
	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusPending,
		Provider:  provider,
		Prompt:    prompt,
		Used:      params,
		CreatedAt: s.now().UTC(),
	}
	if err := s.save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	return job, nil
}

// Get returns the last durably written state of a job. An id the backend
// cannot address names no job.
func (s *JobStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.kv.Get(ctx, jobKeyPrefix+jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidKey) {
			return nil, model.ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

// MarkRunning moves a pending job to running.
func (s *JobStore) MarkRunning(ctx context.Context, jobID string) (*model.Job, error) {
	return s.transition(ctx, jobID, func(job *model.Job) error {
		if job.Status != model.JobStatusPending {
			return fmt.Errorf("cannot start job in status %s", job.Status)
		}
		now := s.now().UTC()
		job.Status = model.JobStatusRunning
		job.StartedAt = &now
		return nil
	})
}

// MarkSucceeded records the artifact of a running job.
func (s *JobStore) MarkSucceeded(ctx context.Context, jobID, artifact, url string) (*model.Job, error) {
	if artifact == "" {
		return nil, fmt.Errorf("succeeded job %s needs an artifact", jobID)
	}
	return s.transition(ctx, jobID, func(job *model.Job) error {
		if job.Status != model.JobStatusRunning {
			return fmt.Errorf("cannot complete job in status %s", job.Status)
		}
		now := s.now().UTC()
		job.Status = model.JobStatusSucceeded
		job.Artifact = artifact
		job.URL = url
		job.CompletedAt = &now
		return nil
	})
}

// MarkFailed records a diagnostic on a pending or running job.
func (s *JobStore) MarkFailed(ctx context.Context, jobID, msg string) (*model.Job, error) {
	if msg == "" {
		msg = "unknown error"
	}
	return s.transition(ctx, jobID, func(job *model.Job) error {
		now := s.now().UTC()
		job.Status = model.JobStatusFailed
		job.Error = &msg
		job.Artifact = ""
		job.URL = ""
		job.CompletedAt = &now
		return nil
	})
}

// SetMirrorURL attaches the object storage copy of a succeeded job.
func (s *JobStore) SetMirrorURL(ctx context.Context, jobID, url string) (*model.Job, error) {
	s.lock(jobID)
	defer s.unlock(jobID)

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusSucceeded {
		return nil, model.ErrJobNotReady
	}
	job.MirrorURL = url
	return job, s.save(ctx, job)
}

func (s *JobStore) transition(ctx context.Context, jobID string, apply func(*model.Job) error) (*model.Job, error) {
	s.lock(jobID)
	defer s.unlock(jobID)

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", model.ErrJobTerminal, jobID, job.Status)
	}
	if err := apply(job); err != nil {
		return nil, err
	}
	if err := s.save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	return job, nil
}

func (s *JobStore) save(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, jobKeyPrefix+job.ID, data, 0)
}

func (s *JobStore) lock(jobID string) {
	mu, _ := s.locks.LoadOrStore(jobID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
}

func (s *JobStore) unlock(jobID string) {
	if mu, ok := s.locks.Load(jobID); ok {
		mu.(*sync.Mutex).Unlock()
	}
}
