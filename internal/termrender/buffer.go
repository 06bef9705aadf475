// Package termrender turns a child's raw output stream into display lines.
//
// Two renderers share one contract: the Automaton interprets LF, CR and BS
// directly, the Screen runs output through a bounded vt10x terminal and diffs
// the visible rows into the buffer. On plain text both produce the same lines.
package termrender

import (
	"errors"
	"sync"
)

// ErrPoisoned is returned once a buffer has been abandoned after a renderer panic.
var ErrPoisoned = errors.New("line buffer poisoned")

// Buffer is a shared, append-mostly sequence of lines. Only the trailing line
// may change after it has been emitted.
type Buffer struct {
	mu       sync.Mutex
	lines    []string
	poisoned bool
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Len returns the number of lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.lines)
}

// LinesFrom returns a copy of the lines at index offset and later. An offset
// past the end yields an empty slice.
func (b *Buffer) LinesFrom(offset int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if offset < 0 {
		offset = 0
	}

	if offset >= len(b.lines) {
		return []string{}
	}

	out := make([]string, len(b.lines)-offset)
	copy(out, b.lines[offset:])

	return out
}

// Snapshot returns a copy of every line.
func (b *Buffer) Snapshot() []string {
	return b.LinesFrom(0)
}

// Poisoned reports whether the buffer stopped accepting output.
func (b *Buffer) Poisoned() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.poisoned
}

// Poison marks the buffer as abandoned. Lines already emitted stay readable.
func (b *Buffer) Poison() {
	b.mu.Lock()
	b.poisoned = true
	b.mu.Unlock()
}

// AppendLine appends one complete line. It is meant for writers that are not
// renderers, such as status messages interleaved between child processes.
func (b *Buffer) AppendLine(line string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.poisoned {
		return ErrPoisoned
	}

	b.lines = append(b.lines, line)

	return nil
}

// commit applies one renderer update under a single lock acquisition.
// If replaceTail is set the last line is dropped before frozen and current are
// appended; current is appended only when open.
func (b *Buffer) commit(replaceTail bool, frozen []string, current string, open bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.poisoned {
		return ErrPoisoned
	}

	if replaceTail && len(b.lines) > 0 {
		b.lines = b.lines[:len(b.lines)-1]
	}

	b.lines = append(b.lines, frozen...)
	if open {
		b.lines = append(b.lines, current)
	}

	return nil
}
