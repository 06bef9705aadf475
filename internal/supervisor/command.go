package supervisor

import (
	"strings"

	"github.com/colony-launcher/colony/internal/termrender"
)

// Command describes a child process to spawn.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env entries are appended to the launcher's own environment.
	Env []string

	// Container links the job into the container index when set.
	Container string

	// PTY runs the child on a pseudo-terminal instead of a pipe. Only
	// supported on unix hosts.
	PTY bool

	// MergeStderr sends the child's stderr into the same stream as stdout.
	MergeStderr bool

	// Output, when set, receives the rendered lines instead of a fresh
	// buffer. Several sequential commands may share one buffer.
	Output *termrender.Buffer
}

// Argv returns the path followed by the arguments.
func (c *Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

// String renders the command for logs.
func (c *Command) String() string {
	return strings.Join(c.Argv(), " ")
}
