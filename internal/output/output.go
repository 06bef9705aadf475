// Package output writes human and machine output for colony commands.
//
// A Writer carries the global output modes (--json, --quiet, --no-input) and
// the detected terminal. Commands fetch it from the context. Status lines get
// a leading symbol and are colored only on a color-capable TTY.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/colony-launcher/colony/internal/terminal"
)

// Status symbols.
const (
	CheckMark   = "✓"
	XMark       = "✗"
	WarningMark = "⚠"
	InfoMark    = "ℹ"
)

type contextKey struct{}

// tone is one kind of status line.
type tone struct {
	symbol string
	color  *color.Color
	// loud lines are written in quiet mode too.
	loud bool
	// toErr sends the line to the error stream.
	toErr bool
}

var (
	successTone = tone{symbol: CheckMark, color: color.New(color.FgGreen)}
	failureTone = tone{symbol: XMark, color: color.New(color.FgRed), loud: true, toErr: true}
	warningTone = tone{symbol: WarningMark, color: color.New(color.FgYellow)}
	infoTone    = tone{symbol: InfoMark, color: color.New(color.FgCyan)}
	mutedColor  = color.New(color.FgHiBlack)
)

// Writer handles CLI output with multiple modes.
type Writer struct {
	Out     io.Writer
	Err     io.Writer
	JSON    bool
	Quiet   bool
	NoInput bool

	terminal *terminal.Info
}

// Default returns a Writer on stdout and stderr.
func Default() *Writer {
	return NewWriter(os.Stdout, os.Stderr, terminal.Detect())
}

// NewWriter returns a Writer on out and errOut.
func NewWriter(out, errOut io.Writer, term *terminal.Info) *Writer {
	if !term.ColorEnabled() {
		color.NoColor = true
	}

	return &Writer{Out: out, Err: errOut, terminal: term}
}

// WithContext stores the Writer in the context.
func (w *Writer) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext retrieves the Writer from context, or returns Default().
func FromContext(ctx context.Context) *Writer {
	if w, ok := ctx.Value(contextKey{}).(*Writer); ok {
		return w
	}

	return Default()
}

// Terminal returns the terminal info.
func (w *Writer) Terminal() *terminal.Info {
	return w.terminal
}

// SetNoColor disables colored output.
func (w *Writer) SetNoColor(disabled bool) {
	w.terminal.ForceFlag = disabled
	if disabled {
		color.NoColor = true
	}
}

// Divert sends everything meant for Out to Err. Commands whose stdout is a
// protocol stream call it before printing anything.
func (w *Writer) Divert() {
	w.Out = w.Err
}

// Print writes to Out unless quiet.
func (w *Writer) Print(format string, args ...interface{}) {
	if !w.Quiet {
		fmt.Fprintf(w.Out, format, args...)
	}
}

// Println writes a line to Out unless quiet.
func (w *Writer) Println(args ...interface{}) {
	if !w.Quiet {
		fmt.Fprintln(w.Out, args...)
	}
}

// PrintJSON writes v as indented JSON. Quiet mode does not apply.
func (w *Writer) PrintJSON(v interface{}) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// Write implements io.Writer on Out, discarding in quiet mode.
func (w *Writer) Write(p []byte) (int, error) {
	if w.Quiet {
		return len(p), nil
	}

	return w.Out.Write(p)
}

func (w *Writer) status(t tone, format string, args ...interface{}) {
	if w.Quiet && !t.loud {
		return
	}

	dst := w.Out
	if t.toErr {
		dst = w.Err
	}

	msg := fmt.Sprintf(format, args...)

	if w.terminal.ColorEnabled() {
		t.color.Fprint(dst, t.symbol+" ")
		fmt.Fprintln(dst, msg)

		return
	}

	fmt.Fprintln(dst, t.symbol+" "+msg)
}

// Success writes a line with a check mark.
func (w *Writer) Success(format string, args ...interface{}) {
	w.status(successTone, format, args...)
}

// Failure writes a line with an X mark to Err, even in quiet mode.
func (w *Writer) Failure(format string, args ...interface{}) {
	w.status(failureTone, format, args...)
}

// Warning writes a line with a warning sign.
func (w *Writer) Warning(format string, args ...interface{}) {
	w.status(warningTone, format, args...)
}

// Info writes a line with an info sign.
func (w *Writer) Info(format string, args ...interface{}) {
	w.status(infoTone, format, args...)
}

// Muted writes a dimmed line without a symbol.
func (w *Writer) Muted(format string, args ...interface{}) {
	if w.Quiet {
		return
	}

	msg := fmt.Sprintf(format, args...)

	if w.terminal.ColorEnabled() {
		mutedColor.Fprintln(w.Out, msg)
		return
	}

	fmt.Fprintln(w.Out, msg)
}

// Lines writes captured job output, one muted line per entry, indented.
func (w *Writer) Lines(lines []string) {
	for _, line := range lines {
		w.Muted("  %s", line)
	}
}
