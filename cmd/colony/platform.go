package main

import (
	"runtime"

	"github.com/spf13/cobra"

	clierrors "github.com/colony-launcher/colony/internal/errors"
	"github.com/colony-launcher/colony/internal/output"
	"github.com/colony-launcher/colony/internal/platform"
	"github.com/colony-launcher/colony/internal/singularity"
	"github.com/colony-launcher/colony/internal/termrender"
)

func newPlatformCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platform",
		Short: "Prepare the host to run containers",
		Long:  `Check and install what the launcher needs on this host: the Linux subsystem and Singularity.`,
	}

	cmd.AddCommand(newPlatformCheckCmd())

	return cmd
}

// platformReport is the JSON result of 'platform check'.
type platformReport struct {
	States []platform.State `json:"states"`
	Output []string         `json:"output"`
	Error  string           `json:"error,omitempty"`
}

func newPlatformCheckCmd() *cobra.Command {
	var distributionTar string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check and install platform prerequisites",
		Long: `Run the platform setup stages. On Windows this installs the Linux subsystem,
imports the launcher distribution, and installs Singularity inside it. On other
hosts it verifies that a recent enough Singularity is on PATH. Stages that are
already satisfied are skipped.`,
		Example: `  colony platform check
  colony platform check --distribution-tar ./colony-wsl.tar`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			e, err := loadEnv(cmd.Context())
			if err != nil {
				return err
			}

			sup, err := e.supervisor()
			if err != nil {
				return err
			}
			defer sup.Shutdown()

			stages := platform.Plan(platform.PlanOptions{
				GOOS:            runtime.GOOS,
				Distribution:    e.cfg.Distribution(),
				DistributionTar: distributionTar,
				InstallDir:      e.dir,
				Querier:         singularity.Querier{Host: e.host},
			})

			report := platformReport{}
			spin := out.Spinner("Checking platform")
			if !out.JSON {
				spin.Start()
			}

			buf := termrender.NewBuffer()
			runErr := platform.NewChecker(sup, e.logger).Run(cmd.Context(), stages, buf, func(s platform.State) {
				report.States = append(report.States, s)
				spin.UpdateMessage(string(s))
			})

			report.Output = buf.Snapshot()

			if out.JSON {
				if runErr != nil {
					report.Error = runErr.Error()
				}

				if err := out.PrintJSON(report); err != nil {
					return err
				}
			}

			if runErr != nil {
				if !out.JSON {
					spin.StopWithFailure("Platform setup failed")
					out.Lines(report.Output)
				}

				return clierrors.PlatformCheckFailed(string(lastState(report.States)), runErr)
			}

			if !out.JSON {
				spin.StopWithSuccess("Platform ready")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&distributionTar, "distribution-tar", "", "Exported distribution to import (Windows only)")

	return cmd
}

// lastState is the last stage reached before InstallationFailed.
func lastState(states []platform.State) platform.State {
	for i := len(states) - 1; i >= 0; i-- {
		if states[i] != platform.InstallationFailed {
			return states[i]
		}
	}

	return platform.InstallationStarted
}
