package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/client"
	"github.com/shortsmith/api/internal/config"
	"github.com/shortsmith/api/internal/media"
	"github.com/shortsmith/api/internal/model"
)

// SoraAdapter renders through the managed video API.
type SoraAdapter struct {
	client  client.VideoGenerator
	library *media.Library
	cfg     config.SoraConfig
	now     func() time.Time
	logger  arbor.ILogger
}

func NewSoraAdapter(c client.VideoGenerator, library *media.Library, cfg config.SoraConfig, logger arbor.ILogger) *SoraAdapter {
	if cfg.MaxPollErrors <= 0 {
		cfg.MaxPollErrors = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &SoraAdapter{client: c, library: library, cfg: cfg, now: time.Now, logger: logger}
}

func (a *SoraAdapter) Kind() model.Provider { return model.ProviderSora }

func (a *SoraAdapter) PollInterval() time.Duration { return a.cfg.PollInterval }

// Start creates the remote job. The job counts as started once the remote
// side accepted it.
func (a *SoraAdapter) Start(ctx context.Context, job *model.Job) (*Run, error) {
	remote, err := a.client.CreateVideoJob(ctx, &client.CreateVideoJobRequest{
		Model:    a.cfg.Model,
		Prompt:   job.Prompt,
		NSeconds: model.VideoSeconds,
		Width:    a.cfg.Width,
		Height:   a.cfg.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("sora create: %w", err)
	}

	a.logger.Info().Str("job_id", job.ID).Str("remote_id", remote.ID).Msg("Sora job created")
	return &Run{JobID: job.ID, StartedAt: a.now(), remoteID: remote.ID}, nil
}

func (a *SoraAdapter) IsTerminal(ctx context.Context, run *Run) (RunState, error) {
	if a.cfg.MaxWait > 0 && a.now().Sub(run.StartedAt) > a.cfg.MaxWait {
		return RunState{Started: true, Terminal: true, Failure: fmt.Sprintf("sora job timed out after %s", a.cfg.MaxWait)}, nil
	}

	remote, err := a.client.GetVideoJob(ctx, run.remoteID)
	if err != nil {
		run.pollErrors++
		a.logger.Warn().Err(err).Str("job_id", run.JobID).Int("consecutive", run.pollErrors).Msg("Sora poll failed")
		if run.pollErrors >= a.cfg.MaxPollErrors {
			return RunState{Started: true, Terminal: true, Failure: fmt.Sprintf("sora status unavailable: %v", err)}, nil
		}
		return RunState{Started: true}, nil
	}
	run.pollErrors = 0

	switch remote.Status {
	case client.VideoJobSucceeded:
		if len(remote.Generations) == 0 || remote.Generations[0].ID == "" {
			return RunState{Started: true, Terminal: true, Failure: "sora job succeeded without a generation"}, nil
		}
		run.generationID = remote.Generations[0].ID
		return RunState{Started: true, Terminal: true}, nil
	case client.VideoJobFailed, client.VideoJobCancelled:
		reason := remote.FailureReason
		if reason == "" {
			reason = "sora job " + remote.Status
		}
		return RunState{Started: true, Terminal: true, Failure: reason}, nil
	}
	return RunState{Started: true}, nil
}

// MaterializeResult downloads the first generation next to its final name
// and renames it into place.
func (a *SoraAdapter) MaterializeResult(ctx context.Context, run *Run) (string, error) {
	name := media.ArtifactName(run.JobID)
	dest, err := a.library.VideoPath(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(a.library.VideosDir(), name+".*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := a.client.DownloadVideo(ctx, run.generationID, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("sora download: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("sora download returned an empty file")
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("failed to move video into place: %w", err)
	}
	a.logger.Info().Str("job_id", run.JobID).Int64("bytes", n).Msg("Sora video downloaded")
	return name, nil
}
