package transcript

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Entry describes one recorded job on disk.
type Entry struct {
	Meta
	Path string
}

// List returns recorded jobs, newest first. A missing root yields no entries.
func List(rootDir string) ([]Entry, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	out := make([]Entry, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}

		dir := filepath.Join(rootDir, ent.Name())

		data, err := os.ReadFile(filepath.Join(dir, metaFileName)) //nolint:gosec // controlled directory
		if err != nil {
			continue
		}

		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		out = append(out, Entry{Meta: meta, Path: dir})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	return out, nil
}

// ReadChunks returns every chunk recorded for jobID. When the compressed log
// is missing or truncated (the recorder never closed) the live copy is used.
func ReadChunks(rootDir, jobID string) ([]Chunk, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}

	dir := filepath.Join(rootDir, jobID)
	if _, err := os.Stat(filepath.Join(dir, metaFileName)); err != nil {
		return nil, fmt.Errorf("transcript for job %s: %w", jobID, err)
	}

	chunks, err := readCompressed(filepath.Join(dir, chunksFileName))
	if err == nil {
		return chunks, nil
	}

	return readPlain(filepath.Join(dir, chunksLiveFileName))
}

// ReadOutput concatenates the raw bytes of every chunk for jobID.
func ReadOutput(rootDir, jobID string) ([]byte, error) {
	chunks, err := ReadChunks(rootDir, jobID)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	for i := range chunks {
		raw, err := chunks[i].Raw()
		if err != nil {
			return nil, err
		}

		out.Write(raw)
	}

	return out.Bytes(), nil
}

func readCompressed(path string) (chunks []Chunk, err error) {
	file, err := os.Open(path) //nolint:gosec // controlled path
	if err != nil {
		return nil, fmt.Errorf("open transcript chunks: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}

	defer func() {
		if closeErr := gzipReader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return scanChunks(gzipReader)
}

func readPlain(path string) (chunks []Chunk, err error) {
	file, err := os.Open(path) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("open live transcript chunks: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return scanChunks(file)
}

func scanChunks(r io.Reader) ([]Chunk, error) {
	var chunks []Chunk

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		trimmed := bytes.TrimSpace(scanner.Bytes())
		if len(trimmed) == 0 {
			continue
		}

		var chunk Chunk
		if err := json.Unmarshal(trimmed, &chunk); err != nil {
			continue
		}

		chunks = append(chunks, chunk)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scan transcript chunks: %w", err)
	}

	return chunks, nil
}

// PruneOlderThan removes job directories that closed (or started, if never
// closed) before cutoff.
func PruneOlderThan(rootDir string, cutoff time.Time) (int, error) {
	entries, err := List(rootDir)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, entry := range entries {
		reference := entry.StartedAt
		if entry.ClosedAt != nil {
			reference = *entry.ClosedAt
		}

		if !reference.Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(entry.Path); err != nil {
			return removed, fmt.Errorf("prune transcript %q: %w", entry.JobID, err)
		}

		removed++
	}

	return removed, nil
}
