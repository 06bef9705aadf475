// Package platform prepares the host to run containers: the Linux subsystem,
// the launcher's distribution, and Singularity inside it.
//
// Setup is a list of stages. Each stage may carry a probe that skips it when
// the host already satisfies it. Every command's output goes to one shared
// line buffer so the caller can poll progress like any job.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/colony-launcher/colony/internal/job"
	"github.com/colony-launcher/colony/internal/observability"
	"github.com/colony-launcher/colony/internal/supervisor"
	"github.com/colony-launcher/colony/internal/termrender"
)

// State is a setup progress report.
type State string

// Setup states.
const (
	InstallationStarted           State = "InstallationStarted"
	InstallingWSL                 State = "InstallingWSL"
	ImportingDistribution         State = "ImportingDistribution"
	DistributionWasNotFound       State = "DistributionWasNotFound"
	DistributionNeedsToBeSelected State = "DistributionNeedsToBeSelected"
	InstallingSingularity         State = "InstallingSingularity"
	InstallationEnded             State = "InstallationEnded"
	InstallationFailed            State = "InstallationFailed"
)

// ErrStageFailed is returned when a required stage does not complete.
var ErrStageFailed = errors.New("platform setup stage failed")

// Stage is one step of setup. State is reported once the stage completes or
// is skipped.
type Stage struct {
	State   State
	Message string
	// Probe reports whether the stage is already satisfied.
	Probe func(ctx context.Context) (bool, error)
	// Prepare runs before the commands. Returned states are reported and the
	// stage fails.
	Prepare func() []State
	// Commands run in order; a non-zero exit fails the stage.
	Commands []supervisor.Command
	// Optional stages log failures and continue.
	Optional bool
}

// Runner starts and awaits commands. *supervisor.Supervisor satisfies it.
type Runner interface {
	Spawn(ctx context.Context, cmd supervisor.Command) (job.ID, error)
	Wait(ctx context.Context, id job.ID) (job.State, error)
}

// Checker runs setup stages.
type Checker struct {
	runner Runner
	logger *slog.Logger
}

// NewChecker returns a Checker spawning commands through runner.
func NewChecker(runner Runner, logger *slog.Logger) *Checker {
	return &Checker{runner: runner, logger: observability.Component(logger, "platform")}
}

// Run executes stages in order, writing progress into out and calling report
// for every state reached. It reports InstallationEnded on success and
// InstallationFailed on the first failed required stage.
func (c *Checker) Run(ctx context.Context, stages []Stage, out *termrender.Buffer, report func(State)) error {
	say := func(line string) {
		if err := out.AppendLine(line); err != nil {
			c.logger.Debug("setup output dropped", slog.String("error", err.Error()))
		}
	}

	fail := func(stage Stage, err error) error {
		say(fmt.Sprintf("%s failed: %v", stage.State, err))
		report(InstallationFailed)
		c.logger.Warn("Platform setup failed", slog.String("stage", string(stage.State)), slog.String("error", err.Error()))

		return fmt.Errorf("%w: %s: %w", ErrStageFailed, stage.State, err)
	}

	for _, stage := range stages {
		if stage.Message != "" {
			say(stage.Message)
		}

		if stage.Probe != nil {
			done, err := stage.Probe(ctx)
			if err != nil {
				c.logger.Debug("probe failed", slog.String("stage", string(stage.State)), slog.String("error", err.Error()))
			}

			if done {
				say(fmt.Sprintf("%s: already satisfied", stage.State))
				report(stage.State)

				continue
			}
		}

		if stage.Prepare != nil {
			if states := stage.Prepare(); len(states) > 0 {
				for _, s := range states {
					report(s)
				}

				return fail(stage, fmt.Errorf("prerequisite missing: %s", states[len(states)-1]))
			}
		}

		if err := c.runCommands(ctx, stage.Commands, out); err != nil {
			if !stage.Optional {
				return fail(stage, err)
			}

			say(fmt.Sprintf("%s: %v (continuing)", stage.State, err))
		}

		report(stage.State)
	}

	say("Installation finished")
	report(InstallationEnded)

	return nil
}

func (c *Checker) runCommands(ctx context.Context, cmds []supervisor.Command, out *termrender.Buffer) error {
	for _, cmd := range cmds {
		cmd.Output = out

		id, err := c.runner.Spawn(ctx, cmd)
		if err != nil {
			return err
		}

		state, err := c.runner.Wait(ctx, id)
		if err != nil {
			return err
		}

		if state.Kind != job.Completed || state.ExitCode != 0 {
			return fmt.Errorf("%s ended with %s", cmd.String(), state)
		}
	}

	return nil
}
