//go:build unix

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/colony-launcher/colony/internal/termrender"
)

func start(c *Command, usePTY bool, geo termrender.Options) (*started, error) {
	cmd := newExecCmd(c)

	if usePTY {
		rows, cols := ptySize(geo)

		// pty.StartWithSize assigns the tty to stdin, stdout and stderr and
		// starts a new session, so the child leads its own process group.
		ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
		if err != nil {
			return nil, err
		}

		pgid := 0
		if pg, pgErr := unix.Getpgid(cmd.Process.Pid); pgErr == nil {
			pgid = pg
		}

		return &started{cmd: cmd, output: ptmx, pgid: pgid}, nil
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	output, err := startPiped(cmd, c.MergeStderr)
	if err != nil {
		return nil, err
	}

	return &started{cmd: cmd, output: output, pgid: cmd.Process.Pid}, nil
}

func hideWindow(*exec.Cmd) {}

// killProcess sends SIGKILL to the child's process group, falling back to the
// child alone.
func killProcess(p *os.Process, pgid int) {
	if pgid > 0 {
		if err := unix.Kill(-pgid, unix.SIGKILL); err == nil || errors.Is(err, unix.ESRCH) {
			return
		}
	}

	_ = p.Kill()
}

// isPTYClosed reports the EIO a pty master returns once the child side closes.
func isPTYClosed(err error) bool {
	return errors.Is(err, unix.EIO)
}
