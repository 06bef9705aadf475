package output

import (
	"time"

	"github.com/briandowns/spinner"
)

// Spinner animates a long operation. Without a color TTY, or in quiet mode,
// it prints the message once and a one-word result when stopped.
type Spinner struct {
	spinner *spinner.Spinner
	message string
	writer  *Writer
}

// Spinner returns a stopped spinner showing message.
func (w *Writer) Spinner(message string) *Spinner {
	s := &Spinner{message: message, writer: w}

	if w.Quiet || !w.terminal.SpinnersEnabled() {
		return s
	}

	s.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.spinner.Writer = w.Out
	s.spinner.Suffix = " " + message

	return s
}

// Start begins the animation.
func (s *Spinner) Start() {
	if s.spinner == nil {
		s.writer.Print("%s... ", s.message)
		return
	}

	s.spinner.Start()
}

// Stop ends the animation without a result line.
func (s *Spinner) Stop() {
	if s.spinner != nil {
		s.spinner.Stop()
	}
}

// UpdateMessage changes the text shown next to the animation.
func (s *Spinner) UpdateMessage(message string) {
	s.message = message
	if s.spinner != nil {
		s.spinner.Suffix = " " + message
	}
}

func (s *Spinner) finish(word string, report func(string, ...interface{}), message string) {
	if s.spinner == nil {
		s.writer.Println(word)
	} else {
		s.spinner.Stop()
	}

	if message != "" {
		report("%s", message)
	}
}

// StopWithSuccess stops and reports success.
func (s *Spinner) StopWithSuccess(message string) {
	s.finish("done", s.writer.Success, message)
}

// StopWithFailure stops and reports failure.
func (s *Spinner) StopWithFailure(message string) {
	s.finish("failed", s.writer.Failure, message)
}

// StopWithWarning stops and reports a warning.
func (s *Spinner) StopWithWarning(message string) {
	s.finish("warning", s.writer.Warning, message)
}
