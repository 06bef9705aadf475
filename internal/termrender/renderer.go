package termrender

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Renderer consumes a child's output stream and keeps a Buffer up to date.
type Renderer interface {
	io.Writer
	// Close flushes state held back for the next chunk.
	Close() error
}

// Kind selects a renderer implementation.
type Kind string

// Renderer kinds.
const (
	KindAutomaton Kind = "automaton"
	KindScreen    Kind = "screen"
)

// Options configures New.
type Options struct {
	Kind Kind
	Rows int
	Cols int
}

// ParseKind validates a renderer kind name. Empty selects the automaton.
func ParseKind(name string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case "", KindAutomaton:
		return KindAutomaton, nil
	case KindScreen:
		return KindScreen, nil
	default:
		return "", fmt.Errorf("invalid terminal renderer %q (allowed: automaton, screen)", name)
	}
}

// New returns a renderer of the requested kind writing into buf.
func New(buf *Buffer, opts Options) Renderer {
	if opts.Kind == KindScreen {
		return NewScreen(buf, opts.Rows, opts.Cols)
	}

	return NewAutomaton(buf)
}

const readChunkSize = 4096

// Pump copies r into the renderer one chunk at a time until EOF or a read
// error. A renderer panic poisons buf; the rest of the stream is drained so
// the writing process never blocks on a full pipe. Pump returns nil on EOF.
func Pump(r io.Reader, rend Renderer, buf *Buffer) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			buf.Poison()
			_, _ = io.Copy(io.Discard, r)
			err = fmt.Errorf("%w: renderer panic: %v", ErrPoisoned, rec)
		}
	}()

	chunk := make([]byte, readChunkSize)
	for {
		n, readErr := r.Read(chunk)
		if n > 0 {
			if _, writeErr := rend.Write(chunk[:n]); writeErr != nil {
				_, _ = io.Copy(io.Discard, r)
				return writeErr
			}
		}

		if readErr != nil {
			closeErr := rend.Close()
			if errors.Is(readErr, io.EOF) {
				return closeErr
			}

			return fmt.Errorf("read child output: %w", readErr)
		}
	}
}
