package platform

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/colony-launcher/colony/internal/singularity"
	"github.com/colony-launcher/colony/internal/supervisor"
)

// PlanOptions configures the default setup plan.
type PlanOptions struct {
	GOOS string
	// Distribution is the subsystem distribution the launcher imports.
	Distribution string
	// DistributionTar is the exported distribution to import.
	DistributionTar string
	// InstallDir receives the imported distribution's disk.
	InstallDir string
	Querier    singularity.Querier
	// Exec runs probe commands; nil uses supervisor.Run.
	Exec func(context.Context, supervisor.Command) (supervisor.Result, error)
}

func (o PlanOptions) exec() func(context.Context, supervisor.Command) (supervisor.Result, error) {
	if o.Exec != nil {
		return o.Exec
	}

	return supervisor.Run
}

// wsl builds a subsystem management command.
func wsl(args ...string) supervisor.Command {
	return supervisor.Command{Path: "wsl", Args: args, Env: []string{"WSL_UTF8=1"}, MergeStderr: true}
}

// Plan returns the setup stages for the host. Windows hosts install the
// subsystem and import the distribution; other hosts only verify Singularity.
func Plan(opts PlanOptions) []Stage {
	singularityStage := Stage{
		State:   InstallingSingularity,
		Message: "Checking Singularity...",
		Probe: func(ctx context.Context) (bool, error) {
			v, err := opts.Querier.InstalledVersion(ctx)
			if err != nil {
				return false, err
			}

			return singularity.Satisfies(v, singularity.MinimumVersion)
		},
		Commands: []supervisor.Command{opts.Querier.Host.Version()},
	}

	if opts.GOOS != "windows" {
		return []Stage{
			{State: InstallationStarted, Message: "Checking platform..."},
			singularityStage,
		}
	}

	return []Stage{
		{
			State:    InstallationStarted,
			Message:  "Checking WSL...",
			Commands: []supervisor.Command{wsl("--status")},
			Optional: true,
		},
		{
			State:   InstallingWSL,
			Message: "Installing WSL...",
			Probe: func(ctx context.Context) (bool, error) {
				res, err := opts.exec()(ctx, wsl("--status"))
				return err == nil && res.ExitCode == 0, err
			},
			Commands: []supervisor.Command{wsl("--install", "--no-launch"), wsl("--update")},
		},
		{
			State:   ImportingDistribution,
			Message: "Importing Linux distribution...",
			Probe: func(ctx context.Context) (bool, error) {
				res, err := opts.exec()(ctx, wsl("-l"))
				if err != nil {
					return false, err
				}

				return HasDistribution(string(res.Stdout), opts.Distribution), nil
			},
			Prepare: func() []State {
				if info, err := os.Stat(opts.DistributionTar); err != nil || info.IsDir() {
					return []State{DistributionWasNotFound, DistributionNeedsToBeSelected}
				}

				return nil
			},
			Commands: []supervisor.Command{
				wsl("--import", opts.Distribution, filepath.Join(opts.InstallDir, opts.Distribution), opts.DistributionTar),
			},
		},
		singularityStage,
	}
}

// HasDistribution reports whether `wsl -l` output lists name. The output may
// be UTF-16 with interleaved NUL bytes.
func HasDistribution(listing, name string) bool {
	listing = strings.ReplaceAll(listing, "\x00", "")
	if strings.Contains(listing, "DEFAULT_DISTRO_NOT_FOUND") {
		return false
	}

	lines := singularity.Lines(listing)
	if len(lines) > 0 {
		// The first line is a header.
		lines = lines[1:]
	}

	for _, line := range lines {
		if strings.HasPrefix(line, name) {
			return true
		}
	}

	return false
}
