package termrender

const (
	lineFeed       = '\n'
	carriageReturn = '\r'
	backspace      = '\b'
)

// Automaton renders a byte stream by interpreting LF, CR and BS directly.
//
// CR returns the cursor to column zero so following text overwrites the
// current line in place. BS removes the last code point of the current line,
// wherever the cursor is, and never reaches into earlier lines.
type Automaton struct {
	buf *Buffer
	dec decoder

	line []rune
	col  int
	open bool

	// tailOwned is set when the buffer's last line is this renderer's current line.
	tailOwned bool
	frozen    []string
}

// NewAutomaton returns an automaton writing into buf.
func NewAutomaton(buf *Buffer) *Automaton {
	return &Automaton{buf: buf}
}

// Write feeds one chunk of output.
func (a *Automaton) Write(p []byte) (int, error) {
	a.dec.decode(p, a.step)

	if err := a.commit(); err != nil {
		return 0, err
	}

	return len(p), nil
}

// Close flushes a trailing incomplete code point.
func (a *Automaton) Close() error {
	a.dec.flush(a.step)
	return a.commit()
}

func (a *Automaton) step(r rune) {
	switch r {
	case lineFeed:
		a.frozen = append(a.frozen, string(a.line))
		a.line = a.line[:0]
		a.col = 0
		a.open = false
	case carriageReturn:
		a.col = 0
	case backspace:
		a.open = true

		if len(a.line) > 0 {
			a.line = a.line[:len(a.line)-1]
		}

		a.col = min(a.col, len(a.line))
	default:
		a.open = true

		if a.col < len(a.line) {
			a.line[a.col] = r
		} else {
			a.line = append(a.line, r)
		}
		a.col++
	}
}

func (a *Automaton) commit() error {
	if len(a.frozen) == 0 && !a.open && !a.tailOwned {
		return nil
	}

	err := a.buf.commit(a.tailOwned, a.frozen, string(a.line), a.open)
	a.frozen = a.frozen[:0]
	a.tailOwned = a.open

	return err
}
