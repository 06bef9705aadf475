package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// Result is the captured outcome of a one-shot command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Run executes c to completion outside the process store and captures its
// streams. A non-zero exit is reported in Result, not as an error.
func Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...) //nolint:gosec // G204: commands are built by the launcher
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	hideWindow(cmd)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	if c.MergeStderr {
		cmd.Stderr = &stdout
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	return res, err
}
