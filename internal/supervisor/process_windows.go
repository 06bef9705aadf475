//go:build windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/colony-launcher/colony/internal/termrender"
)

func start(c *Command, usePTY bool, _ termrender.Options) (*started, error) {
	if usePTY {
		return nil, errors.New("pseudo-terminal jobs are not supported on windows")
	}

	cmd := newExecCmd(c)
	hideWindow(cmd)

	output, err := startPiped(cmd, c.MergeStderr)
	if err != nil {
		return nil, err
	}

	return &started{cmd: cmd, output: output}, nil
}

// hideWindow keeps console children from flashing a window.
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

func killProcess(p *os.Process, _ int) {
	_ = p.Kill()
}

func isPTYClosed(error) bool {
	return false
}
