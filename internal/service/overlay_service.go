package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/client"
	"github.com/shortsmith/api/internal/media"
	"github.com/shortsmith/api/internal/model"
	"github.com/shortsmith/api/internal/narration"
	"github.com/shortsmith/api/internal/store"
)

// OverlayService narrates a finished video with its script's hook and CTA.
type OverlayService struct {
	jobs        *store.JobStore
	library     *media.Library
	synthesizer client.SpeechSynthesizer
	muxer       media.Muxer
	logger      arbor.ILogger
}

func NewOverlayService(jobs *store.JobStore, library *media.Library, synthesizer client.SpeechSynthesizer, muxer media.Muxer, logger arbor.ILogger) *OverlayService {
	return &OverlayService{
		jobs:        jobs,
		library:     library,
		synthesizer: synthesizer,
		muxer:       muxer,
		logger:      logger,
	}
}

// Overlay writes generated_<id>.mp3 and generated_<id>_voiced.mp4 for a
// succeeded job. An empty name picks the most recent generated video.
func (s *OverlayService) Overlay(ctx context.Context, artifactName string) (*model.OverlayResponse, error) {
	if strings.TrimSpace(artifactName) == "" {
		latest, err := s.latestArtifact()
		if err != nil {
			return nil, err
		}
		artifactName = latest
	}

	jobID, err := media.JobIDFromArtifact(artifactName)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusSucceeded {
		return nil, model.ErrJobNotReady
	}

	text, err := narration.Extract(job.Used.Script)
	if err != nil {
		return nil, err
	}

	videoPath, err := s.library.VideoPath(job.Artifact)
	if err != nil {
		return nil, err
	}
	if !media.Exists(videoPath) {
		return nil, fmt.Errorf("video file for job %s is missing", jobID)
	}

	audioName := media.NarrationName(jobID)
	audioPath, err := s.library.AudioPath(audioName)
	if err != nil {
		return nil, err
	}
	voicedName := media.VoicedName(jobID)
	voicedPath, err := s.library.VideoPath(voicedName)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("job_id", jobID).Int("chars", len(text)).Msg("Synthesizing narration")

	audio, err := s.synthesizer.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("narration synthesis: %w", err)
	}
	if err := store.WriteFileAtomic(audioPath, audio); err != nil {
		return nil, fmt.Errorf("failed to save narration: %w", err)
	}

	if err := s.muxer.Mux(ctx, videoPath, audioPath, media.NarrationSeconds, voicedPath); err != nil {
		return nil, fmt.Errorf("narration mux: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Str("output", voicedName).Msg("Narration overlay written")

	return &model.OverlayResponse{
		AudioURL: media.AudioURL(audioName),
		URL:      media.VideoURL(voicedName),
		Artifact: voicedName,
	}, nil
}

// latestArtifact returns the newest generated_<id>.mp4, ignoring voiced copies.
func (s *OverlayService) latestArtifact() (string, error) {
	entries, err := os.ReadDir(s.library.VideosDir())
	if err != nil {
		return "", fmt.Errorf("failed to list videos: %w", err)
	}

	type candidate struct {
		name    string
		modTime int64
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := media.JobIDFromArtifact(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{name: e.Name(), modTime: info.ModTime().UnixNano()})
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w: no generated video found in %s", model.ErrInvalidArtifact, filepath.Base(s.library.VideosDir()))
	}
	sort.Slice(found, func(i, j int) bool { return found[i].modTime > found[j].modTime })
	return found[0].name, nil
}
