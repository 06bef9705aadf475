//go:build !unix && !windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"

	"github.com/colony-launcher/colony/internal/termrender"
)

func start(c *Command, usePTY bool, _ termrender.Options) (*started, error) {
	if usePTY {
		return nil, errors.New("pseudo-terminal jobs are not supported on this platform")
	}

	cmd := newExecCmd(c)

	output, err := startPiped(cmd, c.MergeStderr)
	if err != nil {
		return nil, err
	}

	return &started{cmd: cmd, output: output}, nil
}

func hideWindow(*exec.Cmd) {}

func killProcess(p *os.Process, _ int) {
	_ = p.Kill()
}

func isPTYClosed(error) bool {
	return false
}
