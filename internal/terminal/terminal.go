// Package terminal detects what the attached terminal can do: whether stdout
// and stdin are TTYs, whether color is wanted, and the window size.
package terminal

import (
	"os"

	"golang.org/x/term"
)

// Info holds terminal capability information.
type Info struct {
	IsTTY bool
	// StdinTTY is set when answers can be typed at a prompt.
	StdinTTY  bool
	NoColor   bool
	Width     int
	Height    int
	ForceFlag bool // --no-color
}

// Detect returns terminal information for the current process.
func Detect() *Info {
	stdoutFD := int(os.Stdout.Fd())
	isTTY := term.IsTerminal(stdoutFD)

	width, height := 80, 24

	if isTTY {
		if w, h, err := term.GetSize(stdoutFD); err == nil {
			width, height = w, h
		}
	}

	return &Info{
		IsTTY:    isTTY,
		StdinTTY: term.IsTerminal(int(os.Stdin.Fd())),
		NoColor:  noColorRequested(),
		Width:    width,
		Height:   height,
	}
}

// noColorRequested honours NO_COLOR (https://no-color.org/), COLONY_NO_COLOR,
// and TERM=dumb.
func noColorRequested() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}

	if _, ok := os.LookupEnv("COLONY_NO_COLOR"); ok {
		return true
	}

	return os.Getenv("TERM") == "dumb"
}

// ColorEnabled returns true if colored output should be used.
func (t *Info) ColorEnabled() bool {
	if t.ForceFlag {
		return false
	}

	return t.IsTTY && !t.NoColor
}

// InteractiveEnabled reports whether prompts can be shown and answered.
func (t *Info) InteractiveEnabled() bool {
	return t.IsTTY && t.StdinTTY
}

// SpinnersEnabled returns true if spinners should be used.
func (t *Info) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor
}
