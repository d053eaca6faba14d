// Package media names, locates and muxes the files a render produces.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/shortsmith/api/internal/model"
)

const (
	VideoRoute = "/api/video/"
	AudioRoute = "/api/audio/"
)

var artifactPattern = regexp.MustCompile(`^generated_([A-Za-z0-9-]+)\.mp4$`)

// ArtifactName is the file a job's provider writes.
func ArtifactName(jobID string) string { return "generated_" + jobID + ".mp4" }

// NarrationName is the synthesized audio for a job.
func NarrationName(jobID string) string { return "generated_" + jobID + ".mp3" }

// VoicedName is the derived artifact with narration muxed in.
func VoicedName(jobID string) string { return "generated_" + jobID + "_voiced.mp4" }

// JobIDFromArtifact extracts the job id from a primary artifact name.
func JobIDFromArtifact(name string) (string, error) {
	m := artifactPattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidArtifact, name)
	}
	return m[1], nil
}

// Library maps artifact names onto the media directory.
type Library struct {
	videosDir string
	audioDir  string
}

func NewLibrary(dir string) (*Library, error) {
	l := &Library{
		videosDir: filepath.Join(dir, "videos"),
		audioDir:  filepath.Join(dir, "audio"),
	}
	for _, d := range []string{l.videosDir, l.audioDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create media directory: %w", err)
		}
	}
	return l, nil
}

func (l *Library) VideosDir() string { return l.videosDir }
func (l *Library) AudioDir() string  { return l.audioDir }

// VideoPath resolves a served video name to a local path.
func (l *Library) VideoPath(name string) (string, error) {
	return safeJoin(l.videosDir, name)
}

// AudioPath resolves a served audio name to a local path.
func (l *Library) AudioPath(name string) (string, error) {
	return safeJoin(l.audioDir, name)
}

func VideoURL(name string) string { return VideoRoute + name }
func AudioURL(name string) string { return AudioRoute + name }

// Exists reports whether path is a non-empty regular file.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}

// ContentType sniffs a file, falling back to the extension.
func ContentType(path string) string {
	if mt, err := mimetype.DetectFile(path); err == nil && mt.String() != "application/octet-stream" {
		return mt.String()
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	}
	return "application/octet-stream"
}

func safeJoin(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidArtifact, name)
	}
	return filepath.Join(dir, name), nil
}
