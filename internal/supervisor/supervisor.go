// Package supervisor owns child processes, their output pipelines, and their
// cleanup.
//
// Every spawned child is registered under a job.ID with exactly one read task
// feeding a termrender.Renderer. Kill signals a child at most once, and
// Shutdown kills every child that is still running.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/colony-launcher/colony/internal/job"
	"github.com/colony-launcher/colony/internal/observability"
	"github.com/colony-launcher/colony/internal/termrender"
	"github.com/colony-launcher/colony/internal/transcript"
)

var (
	// ErrUnknownJob is returned for ids that are not in the process store.
	ErrUnknownJob = errors.New("unknown job")
	// ErrClosed is returned by Spawn after Shutdown.
	ErrClosed = errors.New("supervisor is shut down")
)

const (
	shutdownGrace = 2 * time.Second
	// drainGrace bounds how long an exited child's output may keep draining
	// before the job reports Completed. Grandchildren can hold the pipe open.
	drainGrace = 500 * time.Millisecond
)

// Options configures a Supervisor.
type Options struct {
	Logger   *slog.Logger
	Renderer termrender.Options
	// PTY runs every child on a pseudo-terminal.
	PTY bool
	// TranscriptDir enables raw output recording when set.
	TranscriptDir string
}

// Job is a running or finished child.
type Job struct {
	ID      job.ID
	Command Command

	output *termrender.Buffer
	done   chan struct{}

	mu       sync.Mutex
	process  *os.Process
	pgid     int
	exited   bool
	exitCode int
	killed   bool
}

// Summary is a point-in-time view of a job.
type Summary struct {
	ID        job.ID
	Command   []string
	Container string
	State     job.State
}

// Supervisor holds the process store, the output store, and the container index.
type Supervisor struct {
	logger   *slog.Logger
	renderer termrender.Options
	pty      bool
	transDir string

	mu        sync.Mutex
	processes map[uuid.UUID]*Job
	closed    bool

	outputs    *OutputStore
	containers *ContainerIndex
}

// New returns an empty supervisor.
func New(opts Options) *Supervisor {
	return &Supervisor{
		logger:     observability.Component(opts.Logger, "supervisor"),
		renderer:   opts.Renderer,
		pty:        opts.PTY,
		transDir:   opts.TranscriptDir,
		processes:  make(map[uuid.UUID]*Job),
		outputs:    NewOutputStore(),
		containers: NewContainerIndex(),
	}
}

// Outputs returns the job output store.
func (s *Supervisor) Outputs() *OutputStore {
	return s.outputs
}

// Containers returns the container-to-jobs index.
func (s *Supervisor) Containers() *ContainerIndex {
	return s.containers
}

// Spawn starts cmd and returns its job id without waiting for it. A failed
// start leaves every store untouched.
func (s *Supervisor) Spawn(ctx context.Context, cmd Command) (job.ID, error) {
	id := job.NewID()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return job.ID{}, ErrClosed
	}

	usePTY := s.pty || cmd.PTY

	started, err := start(&cmd, usePTY, s.renderer)
	if err != nil {
		s.logger.Warn("spawn failed",
			slog.String(observability.JobKey, id.String()),
			slog.String("command", cmd.String()),
			slog.String("error", err.Error()),
		)

		return job.ID{}, fmt.Errorf("spawn %s: %w", cmd.Path, err)
	}

	// The job is complete before it becomes visible in the process store.
	j := &Job{
		ID:      id,
		Command: cmd,
		output:  s.outputs.Attach(id, cmd.Output),
		done:    make(chan struct{}),
		process: started.cmd.Process,
		pgid:    started.pgid,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.outputs.Delete(id)
		killProcess(started.cmd.Process, started.pgid)
		_ = started.output.Close()
		_, _ = started.cmd.Process.Wait()

		return job.ID{}, ErrClosed
	}

	s.processes[id.Key()] = j
	s.mu.Unlock()

	if cmd.Container != "" {
		s.containers.Link(cmd.Container, id)
	}

	recorder := s.openRecorder(id, &cmd)

	readDone := make(chan struct{})
	go s.read(j, started.output, recorder, readDone)
	go s.wait(ctx, j, started.cmd, recorder, readDone)

	s.logger.Info("job spawned",
		slog.String(observability.JobKey, id.String()),
		slog.String("command", cmd.String()),
		slog.String("container", cmd.Container),
		slog.Bool("pty", usePTY),
	)

	return id, nil
}

func (s *Supervisor) openRecorder(id job.ID, cmd *Command) *transcript.Recorder {
	if s.transDir == "" {
		return nil
	}

	rec, err := transcript.NewRecorder(transcript.Options{
		JobID:     id.String(),
		Dir:       s.transDir,
		Command:   cmd.Argv(),
		Container: cmd.Container,
	})
	if err != nil {
		s.logger.Warn("transcript disabled for job", slog.String(observability.JobKey, id.String()), slog.String("error", err.Error()))
		return nil
	}

	return rec
}

// read is the single read task for one job.
func (s *Supervisor) read(j *Job, output io.ReadCloser, recorder *transcript.Recorder, readDone chan<- struct{}) {
	defer close(readDone)
	defer output.Close()

	var src io.Reader = output
	if recorder != nil {
		src = io.TeeReader(output, recorder)
	}

	rend := termrender.New(j.output, s.renderer)
	if err := termrender.Pump(src, rend, j.output); err != nil && !isPTYClosed(err) {
		s.logger.Debug("job output ended", slog.String(observability.JobKey, j.ID.String()), slog.String("error", err.Error()))
	}
}

func (s *Supervisor) wait(ctx context.Context, j *Job, cmd *exec.Cmd, recorder *transcript.Recorder, readDone <-chan struct{}) {
	waitErr := cmd.Wait()

	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	} else if waitErr != nil {
		code = -1
	}

	drain := time.NewTimer(drainGrace)
	select {
	case <-readDone:
	case <-drain.C:
	}
	drain.Stop()

	j.mu.Lock()
	j.exited = true
	j.exitCode = code
	j.mu.Unlock()
	close(j.done)

	s.logger.Info("job exited", slog.String(observability.JobKey, j.ID.String()), slog.Int("exit_code", code))

	if recorder == nil {
		return
	}

	select {
	case <-readDone:
	case <-ctx.Done():
	}

	if err := recorder.Finish(code); err != nil {
		s.logger.Warn("close transcript", slog.String(observability.JobKey, j.ID.String()), slog.String("error", err.Error()))
	}
}

func (s *Supervisor) lookup(id job.ID) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.processes[id.Key()]
}

// PollState reports a job's state without blocking. A job whose lock is held
// elsewhere, or whose output buffer was poisoned while running, is Unknown.
func (s *Supervisor) PollState(id job.ID) job.State {
	j := s.lookup(id)
	if j == nil {
		return job.StateOf(job.NotListed)
	}

	if !j.mu.TryLock() {
		return job.StateOf(job.Unknown)
	}
	defer j.mu.Unlock()

	if j.exited {
		return job.CompletedWith(j.exitCode)
	}

	if j.output != nil && j.output.Poisoned() {
		return job.StateOf(job.Unknown)
	}

	return job.StateOf(job.Running)
}

// ReadLines returns the job's lines at index offset and later.
func (s *Supervisor) ReadLines(id job.ID, offset int) ([]string, error) {
	buf, ok := s.outputs.Get(id)
	if !ok {
		return nil, ErrUnknownJob
	}

	return buf.LinesFrom(offset), nil
}

// Wait blocks until the job exits or ctx ends.
func (s *Supervisor) Wait(ctx context.Context, id job.ID) (job.State, error) {
	j := s.lookup(id)
	if j == nil {
		return job.StateOf(job.NotListed), ErrUnknownJob
	}

	select {
	case <-j.done:
		return s.PollState(id), nil
	case <-ctx.Done():
		return job.StateOf(job.Running), ctx.Err()
	}
}

// Kill terminates the job's child. It is idempotent: the signal is sent at
// most once and never to a child that already exited. The job stays in the
// store so its output and exit code remain readable.
func (s *Supervisor) Kill(id job.ID) error {
	j := s.lookup(id)
	if j == nil {
		return ErrUnknownJob
	}

	if j.kill() {
		s.logger.Info("job killed", slog.String(observability.JobKey, id.String()))
	}

	return nil
}

func (j *Job) kill() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.killed || j.exited || j.process == nil {
		return false
	}

	j.killed = true
	killProcess(j.process, j.pgid)

	return true
}

// KillAll kills every job that is still running.
func (s *Supervisor) KillAll() int {
	killed := 0
	for _, j := range s.snapshot() {
		if j.kill() {
			killed++
		}
	}

	return killed
}

// Remove kills the job if needed and forgets it: the process store, the
// output store, and the container index all drop the id.
func (s *Supervisor) Remove(id job.ID) error {
	s.mu.Lock()
	j, ok := s.processes[id.Key()]
	delete(s.processes, id.Key())
	s.mu.Unlock()

	if !ok {
		return ErrUnknownJob
	}

	j.kill()
	s.outputs.Delete(id)

	if j.Command.Container != "" {
		s.containers.Unlink(j.Command.Container, id)
	}

	return nil
}

// ReleaseContainer removes every finished job that ran container and returns
// their ids. Jobs that are still running stay.
func (s *Supervisor) ReleaseContainer(container string) []job.ID {
	var released []job.ID

	for _, id := range s.containers.Jobs(container) {
		if !s.PollState(id).IsTerminal() {
			continue
		}

		if err := s.Remove(id); err == nil {
			released = append(released, id)
		}
	}

	if len(released) > 0 {
		s.logger.Info("container jobs released", slog.String("container", container), slog.Int("jobs", len(released)))
	}

	return released
}

// Jobs returns summaries of every job in the store, oldest first.
func (s *Supervisor) Jobs() []Summary {
	jobs := s.snapshot()
	out := make([]Summary, 0, len(jobs))

	for _, j := range jobs {
		out = append(out, Summary{
			ID:        j.ID,
			Command:   j.Command.Argv(),
			Container: j.Command.Container,
			State:     s.PollState(j.ID),
		})
	}

	return out
}

func (s *Supervisor) snapshot() []*Job {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.processes))
	for _, j := range s.processes {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].ID.Ordered != jobs[b].ID.Ordered {
			return jobs[a].ID.Ordered < jobs[b].ID.Ordered
		}

		return jobs[a].ID.String() < jobs[b].ID.String()
	})

	return jobs
}

// Shutdown kills every running child, waits briefly for them to be reaped,
// and releases the process store. Later calls to Spawn fail with ErrClosed.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	jobs := s.snapshot()
	for _, j := range jobs {
		j.kill()
	}

	graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	for _, j := range jobs {
		select {
		case <-j.done:
		case <-graceCtx.Done():
			s.logger.Warn("child not reaped before shutdown deadline", slog.String(observability.JobKey, j.ID.String()))
		}
	}

	s.mu.Lock()
	s.processes = make(map[uuid.UUID]*Job)
	s.mu.Unlock()

	s.logger.Info("supervisor shut down", slog.Int("jobs", len(jobs)))
}
