// Package singularity builds Singularity command lines and parses the
// answers containers give to capability queries.
//
// On Windows every command runs inside the Linux subsystem through a wrapper
// prefix (wsl -d <distribution> -e) and host paths are converted with
// Wslify. Elsewhere commands run directly.
package singularity

import (
	"github.com/colony-launcher/colony/internal/supervisor"
)

// Binary is the Singularity executable name inside the subsystem.
const Binary = "singularity"

// bindMounts exposes the host drives inside the container.
const bindMounts = "/mnt:/mnt"

// Host describes how commands reach Singularity.
type Host struct {
	// Wrapper is prepended to every command line. Empty runs Binary directly.
	Wrapper []string
	// Translate converts host paths to subsystem paths.
	Translate bool
}

// NewHost returns the host for goos with the given wrapper.
func NewHost(wrapper []string, goos string) Host {
	return Host{Wrapper: wrapper, Translate: goos == "windows"}
}

// Path converts a host path for use inside the subsystem.
func (h Host) Path(p string) string {
	if h.Translate {
		return Wslify(p)
	}

	return p
}

// HostPath converts a subsystem path back to a host path.
func (h Host) HostPath(p string) string {
	if h.Translate {
		return Unwslify(p)
	}

	return p
}

// Command wraps argv in the host wrapper.
func (h Host) Command(argv ...string) supervisor.Command {
	full := append(append([]string{}, h.Wrapper...), argv...)

	return supervisor.Command{Path: full[0], Args: full[1:]}
}

// Singularity builds a singularity invocation.
func (h Host) Singularity(args ...string) supervisor.Command {
	return h.Command(append([]string{Binary}, args...)...)
}

// Run builds `singularity run --pwd <workdir> --bind /mnt:/mnt <container> args...`.
// The job is indexed under container and its stderr merged into the output.
func (h Host) Run(workdir, container string, args []string) supervisor.Command {
	argv := append([]string{"run", "--pwd", h.Path(workdir), "--bind", bindMounts, h.Path(container)}, args...)

	cmd := h.Singularity(argv...)
	cmd.Dir = workdir
	cmd.Container = container
	cmd.MergeStderr = true

	return cmd
}

// RunApp builds `singularity run --pwd <workdir> --bind /mnt:/mnt --app <app> <container> args...`.
func (h Host) RunApp(workdir, container, app string, args []string) supervisor.Command {
	argv := append([]string{"run", "--pwd", h.Path(workdir), "--bind", bindMounts, "--app", app, h.Path(container)}, args...)

	cmd := h.Singularity(argv...)
	cmd.Dir = workdir
	cmd.Container = container
	cmd.MergeStderr = true

	return cmd
}

// Version builds `singularity --version`.
func (h Host) Version() supervisor.Command {
	return h.Singularity("--version")
}
