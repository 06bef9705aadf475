// Package transcript records the raw output of supervised jobs on disk so it
// can be inspected after the launcher exits.
//
// Each job gets a directory holding a gzip JSONL chunk log, a plain live copy
// used for crash recovery, and a meta.json describing the command.
package transcript

import (
	"bufio"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultRetention   = 30 * 24 * time.Hour
	chunksFileName     = "chunks.jsonl.gz"
	chunksLiveFileName = "chunks.live.jsonl"
	metaFileName       = "meta.json"
)

// Chunk is one read from a job's output stream.
type Chunk struct {
	JobID     string    `json:"jobId"`
	Seq       uint64    `json:"seq"`
	TS        time.Time `json:"ts"`
	RawBase64 string    `json:"rawBase64"`
}

// Raw decodes the chunk payload.
func (c *Chunk) Raw() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(c.RawBase64)
	if err != nil {
		return nil, fmt.Errorf("decode transcript chunk %d: %w", c.Seq, err)
	}

	return data, nil
}

// Meta describes one recorded job.
type Meta struct {
	JobID     string     `json:"jobId"`
	Command   []string   `json:"command"`
	Container string     `json:"container,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	ExitCode  *int       `json:"exitCode,omitempty"`
}

// Options configures NewRecorder.
type Options struct {
	JobID     string
	Dir       string
	Command   []string
	Container string
}

// Recorder appends a job's raw output chunks to disk. It is an io.Writer so it
// can sit behind an io.TeeReader on the child's output pipe.
type Recorder struct {
	mu sync.Mutex

	dir    string
	meta   Meta
	seq    uint64
	closed bool

	file     *os.File
	gz       *gzip.Writer
	bw       *bufio.Writer
	liveFile *os.File
	liveBW   *bufio.Writer
}

// NewRecorder creates the job directory and opens its chunk logs.
func NewRecorder(opts Options) (*Recorder, error) {
	if err := validateJobID(opts.JobID); err != nil {
		return nil, err
	}

	if opts.Dir == "" {
		return nil, errors.New("transcript directory is required")
	}

	jobDir := filepath.Join(opts.Dir, opts.JobID)
	if err := os.MkdirAll(jobDir, 0o700); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(jobDir, chunksFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // jobDir is built from a validated id
	if err != nil {
		return nil, fmt.Errorf("open transcript chunks: %w", err)
	}

	liveFile, err := os.OpenFile(filepath.Join(jobDir, chunksLiveFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // jobDir is built from a validated id
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open live transcript chunks: %w", err)
	}

	gz := gzip.NewWriter(f)

	r := &Recorder{
		dir: jobDir,
		meta: Meta{
			JobID:     opts.JobID,
			Command:   append([]string(nil), opts.Command...),
			Container: opts.Container,
			StartedAt: time.Now().UTC(),
		},
		file:     f,
		gz:       gz,
		bw:       bufio.NewWriterSize(gz, 64*1024),
		liveFile: liveFile,
		liveBW:   bufio.NewWriterSize(liveFile, 64*1024),
	}

	if err := r.writeMeta(); err != nil {
		_ = r.Close()
		return nil, err
	}

	return r, nil
}

// Write records one chunk.
func (r *Recorder) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, errors.New("transcript recorder is closed")
	}

	r.seq++

	line, err := json.Marshal(&Chunk{
		JobID:     r.meta.JobID,
		Seq:       r.seq,
		TS:        time.Now().UTC(),
		RawBase64: base64.StdEncoding.EncodeToString(p),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal transcript chunk: %w", err)
	}

	line = append(line, '\n')
	if _, err := r.bw.Write(line); err != nil {
		return 0, fmt.Errorf("encode transcript chunk: %w", err)
	}

	if _, err := r.liveBW.Write(line); err != nil {
		return 0, fmt.Errorf("encode live transcript chunk: %w", err)
	}

	if err := r.liveBW.Flush(); err != nil {
		return 0, fmt.Errorf("flush live transcript chunk: %w", err)
	}

	return len(p), nil
}

// Finish records the exit code and closes the recorder.
func (r *Recorder) Finish(exitCode int) error {
	r.mu.Lock()
	r.meta.ExitCode = &exitCode
	r.mu.Unlock()

	return r.Close()
}

// Close flushes and closes the logs. Calling Close twice is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true

	now := time.Now().UTC()
	r.meta.ClosedAt = &now

	errs := []error{r.writeMeta()}

	if err := r.bw.Flush(); err != nil {
		errs = append(errs, err)
	}

	if err := r.liveBW.Flush(); err != nil {
		errs = append(errs, err)
	}

	if err := r.gz.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := r.liveFile.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (r *Recorder) writeMeta() error {
	data, err := json.Marshal(&r.meta)
	if err != nil {
		return fmt.Errorf("marshal transcript meta: %w", err)
	}

	if err := os.WriteFile(filepath.Join(r.dir, metaFileName), data, 0o600); err != nil {
		return fmt.Errorf("write transcript meta: %w", err)
	}

	return nil
}

func validateJobID(jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}

	if jobID != filepath.Base(jobID) || strings.Contains(jobID, "..") || strings.ContainsAny(jobID, `/\`) {
		return errors.New("invalid job id")
	}

	return nil
}

// DefaultRetention returns the default prune window.
func DefaultRetention() time.Duration {
	return defaultRetention
}
