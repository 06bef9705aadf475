package termrender

import (
	"fmt"
	"strings"

	"github.com/hinshun/vt10x"
)

// Default bounded terminal geometry: two 30-row screens of 120 columns.
const (
	DefaultRows = 60
	DefaultCols = 120
)

// cursorWrapPending mirrors vt10x's cursorWrapNext bit in Cursor.State: the
// last column was written and the next glyph wraps.
const cursorWrapPending = 1 << 1

// Screen renders output through a bounded in-memory terminal without
// scrollback. The screen holds one logical line at a time: it starts at the
// top-left cell, soft-wraps across rows, and is frozen into the buffer and
// cleared on line feed.
//
// The line's extent is the furthest cell the cursor has reached, so trailing
// blanks that were written are kept and wrapped rows join into one line. CR
// homes the cursor to the line start. Tab expansion and cursor motion
// sequences follow terminal rules. A line longer than rows×cols keeps only
// its last screenful.
type Screen struct {
	buf  *Buffer
	term vt10x.Terminal
	dec  decoder
	rows int
	cols int

	text      strings.Builder
	extent    int
	open      bool
	tailOwned bool
	frozen    []string
}

// NewScreen returns a screen renderer with the given geometry. Non-positive
// sizes fall back to the defaults.
func NewScreen(buf *Buffer, rows, cols int) *Screen {
	if rows <= 1 {
		rows = DefaultRows
	}

	if cols <= 0 {
		cols = DefaultCols
	}

	return &Screen{
		buf:  buf,
		term: vt10x.New(vt10x.WithSize(cols, rows)),
		rows: rows,
		cols: cols,
	}
}

// Write feeds one chunk of output.
func (s *Screen) Write(p []byte) (int, error) {
	s.dec.decode(p, s.step)
	s.flushText()

	if err := s.commit(); err != nil {
		return 0, err
	}

	return len(p), nil
}

// Close flushes a trailing incomplete code point.
func (s *Screen) Close() error {
	s.dec.flush(s.step)
	s.flushText()

	return s.commit()
}

func (s *Screen) step(r rune) {
	switch r {
	case lineFeed:
		s.flushText()
		s.frozen = append(s.frozen, s.lineText())
		s.clearScreen()
		s.open = false
	case carriageReturn:
		// The extent must see where the cursor got before it jumps back. CR
		// returns to the start of the logical line, not of the wrapped row.
		s.flushText()
		_, _ = s.term.Write([]byte("\x1b[H"))
	case backspace:
		s.flushText()
		s.open = true
		s.dropLast()
	default:
		s.text.WriteRune(r)
		s.open = true
	}
}

// flushText writes pending text to the terminal and advances the extent.
func (s *Screen) flushText() {
	if s.text.Len() == 0 {
		return
	}

	_, _ = s.term.Write([]byte(s.text.String()))
	s.text.Reset()

	s.extent = max(s.extent, s.cursorPos())
}

// cursorPos is the cursor's offset from the top-left cell, counting a pending
// wrap as the next cell.
func (s *Screen) cursorPos() int {
	s.term.Lock()
	cur := s.term.Cursor()
	s.term.Unlock()

	pos := cur.Y*s.cols + cur.X
	if cur.State&cursorWrapPending != 0 {
		pos++
	}

	return min(pos, s.rows*s.cols)
}

// dropLast removes the line's last code point and keeps the cursor within
// the shortened line.
func (s *Screen) dropLast() {
	if s.extent == 0 {
		return
	}

	cursor := s.cursorPos()
	s.extent--

	last := s.extent
	seq := fmt.Sprintf("\x1b[%d;%dH\x1b[K", last/s.cols+1, last%s.cols+1)

	if cursor < last {
		seq += fmt.Sprintf("\x1b[%d;%dH", cursor/s.cols+1, cursor%s.cols+1)
	}

	_, _ = s.term.Write([]byte(seq))
}

func (s *Screen) clearScreen() {
	_, _ = s.term.Write([]byte("\x1b[2J\x1b[H"))
	s.extent = 0
}

// lineText returns the cells of the current line up to its extent.
func (s *Screen) lineText() string {
	s.term.Lock()
	defer s.term.Unlock()

	runes := make([]rune, 0, s.extent)
	for pos := 0; pos < s.extent; pos++ {
		ch := s.term.Cell(pos%s.cols, pos/s.cols).Char
		if ch == 0 {
			ch = ' '
		}
		runes = append(runes, ch)
	}

	return string(runes)
}

func (s *Screen) commit() error {
	if len(s.frozen) == 0 && !s.open && !s.tailOwned {
		return nil
	}

	err := s.buf.commit(s.tailOwned, s.frozen, s.lineText(), s.open)
	s.frozen = s.frozen[:0]
	s.tailOwned = s.open

	return err
}
