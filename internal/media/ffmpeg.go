package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
)

// NarrationSeconds is the length both the padded video and the trimmed
// narration are cut to. Pad and trim must always read this one value.
const NarrationSeconds = 9

// Muxer combines a video and a narration track into one file.
type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath string, seconds int, outPath string) error
}

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	bin    string
	logger arbor.ILogger
}

func NewFFmpeg(bin string, logger arbor.ILogger) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin, logger: logger}
}

// IsConfigured reports whether the binary can be found.
func (f *FFmpeg) IsConfigured() bool {
	_, err := exec.LookPath(f.bin)
	return err == nil
}

// MuxArgs holds the video on its last frame and trims the audio so both
// streams end at seconds.
func MuxArgs(videoPath, audioPath string, seconds int, outPath string) []string {
	d := strconv.Itoa(seconds)
	filter := fmt.Sprintf("[0:v]tpad=stop_mode=clone:stop_duration=%s[v];[1:a]atrim=0:%s,asetpts=N/SR/TB[a]", d, d)
	return []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-t", d,
		"-movflags", "+faststart",
		outPath,
	}
}

func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath string, seconds int, outPath string) error {
	args := MuxArgs(videoPath, audioPath, seconds, outPath)
	f.logger.Debug().Str("bin", f.bin).Strs("args", args).Msg("Running ffmpeg")

	out, err := exec.CommandContext(ctx, f.bin, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, Tail(string(out), 800))
	}
	if !Exists(outPath) {
		return fmt.Errorf("ffmpeg produced no output at %s", outPath)
	}
	return nil
}

// Tail keeps the last n bytes of s, where tools print their error.
func Tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
