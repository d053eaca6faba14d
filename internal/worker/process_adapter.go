package worker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/config"
	"github.com/shortsmith/api/internal/media"
	"github.com/shortsmith/api/internal/model"
)

const stderrTailBytes = 2048

// ProcessAdapter renders by running the local generator script. The child
// is detached from any request and survives the caller's cancellation.
type ProcessAdapter struct {
	python  string
	script  string
	library *media.Library
	poll    time.Duration
	logger  arbor.ILogger
}

func NewProcessAdapter(cfg config.ProcessConfig, library *media.Library, logger arbor.ILogger) *ProcessAdapter {
	return &ProcessAdapter{
		python:  cfg.Python,
		script:  cfg.Script,
		library: library,
		poll:    250 * time.Millisecond,
		logger:  logger,
	}
}

func (a *ProcessAdapter) Kind() model.Provider { return model.ProviderProcess }

func (a *ProcessAdapter) PollInterval() time.Duration { return a.poll }

// Args builds the generator command line.
func (a *ProcessAdapter) Args(prompt, outPath string) []string {
	return []string{a.script, "--prompt", prompt, "--out", outPath, "--duration", strconv.Itoa(model.VideoSeconds)}
}

type procRun struct {
	outPath string
	started atomic.Bool
	stderr  *tailBuffer
	done    chan struct{}
	waitErr error
}

func (a *ProcessAdapter) Start(_ context.Context, job *model.Job) (*Run, error) {
	outPath, err := a.library.VideoPath(media.ArtifactName(job.ID))
	if err != nil {
		return nil, err
	}

	p := &procRun{
		outPath: outPath,
		stderr:  &tailBuffer{max: stderrTailBytes},
		done:    make(chan struct{}),
	}

	cmd := exec.Command(a.python, a.Args(job.Prompt, outPath)...)
	detach(cmd)
	cmd.Stdout = &lifeSignal{run: p}
	cmd.Stderr = &lifeSignal{run: p, capture: p.stderr}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn generator: %w", err)
	}
	a.logger.Info().Str("job_id", job.ID).Int("pid", cmd.Process.Pid).Msg("Generator process started")

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return &Run{JobID: job.ID, StartedAt: time.Now(), proc: p}, nil
}

func (a *ProcessAdapter) IsTerminal(_ context.Context, run *Run) (RunState, error) {
	p := run.proc
	select {
	case <-p.done:
	default:
		return RunState{Started: p.started.Load()}, nil
	}

	if p.waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(p.waitErr, &exitErr) {
			msg := fmt.Sprintf("generator exited with code %d", exitErr.ExitCode())
			if tail := p.stderr.String(); tail != "" {
				msg += ": " + tail
			}
			return RunState{Started: p.started.Load(), Terminal: true, Failure: msg}, nil
		}
		return RunState{Started: p.started.Load(), Terminal: true, Failure: p.waitErr.Error()}, nil
	}
	if !media.Exists(p.outPath) {
		return RunState{Started: p.started.Load(), Terminal: true, Failure: "generator exited without writing a video"}, nil
	}
	return RunState{Started: true, Terminal: true}, nil
}

func (a *ProcessAdapter) MaterializeResult(_ context.Context, run *Run) (string, error) {
	if !media.Exists(run.proc.outPath) {
		return "", fmt.Errorf("generator output missing at %s", run.proc.outPath)
	}
	return media.ArtifactName(run.JobID), nil
}

// lifeSignal marks the run started on the first byte written by the child.
type lifeSignal struct {
	run     *procRun
	capture *tailBuffer
}

func (w *lifeSignal) Write(b []byte) (int, error) {
	if len(b) > 0 {
		w.run.started.Store(true)
	}
	if w.capture != nil {
		w.capture.Write(b)
	}
	return len(b), nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return media.Tail(string(t.buf), t.max)
}
