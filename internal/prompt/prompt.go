// Package prompt asks the user for confirmation and choices on the terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/colony-launcher/colony/internal/output"
)

// ErrNoChoices is returned by Select for an empty option list.
var ErrNoChoices = errors.New("nothing to choose from")

// Prompter handles interactive prompts.
type Prompter struct {
	out    *output.Writer
	reader *bufio.Reader
	isTTY  func() bool
}

// New returns a Prompter reading answers from stdin.
func New(out *output.Writer) *Prompter {
	return NewWithInput(out, os.Stdin, out.Terminal().InteractiveEnabled)
}

// NewWithInput returns a Prompter reading answers from in. isTTY reports
// whether in is interactive.
func NewWithInput(out *output.Writer, in io.Reader, isTTY func() bool) *Prompter {
	return &Prompter{out: out, reader: bufio.NewReader(in), isTTY: isTTY}
}

// CanPrompt reports whether answers can be read interactively.
func (p *Prompter) CanPrompt() bool {
	return !p.out.NoInput && p.isTTY()
}

// Confirm asks a yes/no question. An empty answer takes defaultValue.
func (p *Prompter) Confirm(message string, defaultValue bool) (bool, error) {
	choices := "y/N"
	if defaultValue {
		choices = "Y/n"
	}

	p.out.Print("%s [%s]: ", message, choices)

	input, err := p.reader.ReadString('\n')
	if err != nil && (input == "" || !errors.Is(err, io.EOF)) {
		return defaultValue, fmt.Errorf("read answer: %w", err)
	}

	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultValue, nil
	}

	return input == "y" || input == "yes", nil
}

// Select lists options and returns the index the user picks. Invalid answers
// are asked again.
func (p *Prompter) Select(message string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, ErrNoChoices
	}

	p.out.Println(message)

	for i, opt := range options {
		p.out.Print("  [%d] %s\n", i+1, opt)
	}

	p.out.Println()

	for {
		p.out.Print("Select [1-%d]: ", len(options))

		input, err := p.reader.ReadString('\n')
		if err != nil && (input == "" || !errors.Is(err, io.EOF)) {
			return -1, fmt.Errorf("read answer: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if err != nil {
				return -1, fmt.Errorf("read answer: %w", err)
			}

			continue
		}

		num, convErr := strconv.Atoi(input)
		if convErr != nil || num < 1 || num > len(options) {
			if err != nil {
				return -1, fmt.Errorf("invalid selection %q", input)
			}

			p.out.Warning("Invalid selection. Please enter a number between 1 and %d", len(options))

			continue
		}

		return num - 1, nil
	}
}
