package supervisor

import (
	"io"
	"os"
	"os/exec"

	"github.com/colony-launcher/colony/internal/termrender"
)

type started struct {
	cmd    *exec.Cmd
	output io.ReadCloser
	pgid   int
}

func newExecCmd(c *Command) *exec.Cmd {
	cmd := exec.Command(c.Path, c.Args...) //nolint:gosec // G204: commands are built by the launcher, not from raw user input
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	return cmd
}

// startPiped runs cmd with stdout (and optionally stderr) on an OS pipe. The
// parent's write end is closed after start so EOF follows the child's exit.
func startPiped(cmd *exec.Cmd, mergeStderr bool) (io.ReadCloser, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	cmd.Stdout = w
	if mergeStderr {
		cmd.Stderr = w
	}

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()

		return nil, err
	}

	_ = w.Close()

	return r, nil
}

func ptySize(geo termrender.Options) (rows, cols uint16) {
	rows, cols = termrender.DefaultRows, termrender.DefaultCols
	if geo.Rows > 0 && geo.Rows <= 0xFFFF {
		rows = uint16(geo.Rows)
	}

	if geo.Cols > 0 && geo.Cols <= 0xFFFF {
		cols = uint16(geo.Cols)
	}

	return rows, cols
}
