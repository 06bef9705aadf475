// Package main is the entry point for the colony launcher back-end.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/colony-launcher/colony/internal/buildinfo"
	"github.com/colony-launcher/colony/internal/config"
	clierrors "github.com/colony-launcher/colony/internal/errors"
	"github.com/colony-launcher/colony/internal/observability"
	"github.com/colony-launcher/colony/internal/output"
	"github.com/colony-launcher/colony/internal/paths"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	buildinfo.Version = version

	out := output.Default()

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		return handleError(out, err)
	}

	return 0
}

// handleError formats and displays a CLI error, returning the exit code.
func handleError(out *output.Writer, err error) int {
	var cliErr *clierrors.CLIError
	if clierrors.As(err, &cliErr) {
		out.Failure("%s", cliErr.Message)

		if cliErr.Hint != "" {
			out.Info("%s", cliErr.Hint)
		}

		return cliErr.Code
	}

	errStr := err.Error()

	if strings.HasPrefix(errStr, "unknown command") {
		out.Failure("%s", errStr)

		if !strings.Contains(errStr, "--help") {
			out.Info("Run 'colony --help' for usage")
		}

		return clierrors.ExitUsage
	}

	if strings.HasPrefix(errStr, "unknown flag") ||
		strings.HasPrefix(errStr, "unknown shorthand flag") ||
		strings.Contains(errStr, "required flag") {
		out.Failure("%s", errStr)
		out.Info("Run 'colony --help' for usage")

		return clierrors.ExitUsage
	}

	out.Failure("%s", errStr)

	return clierrors.ExitGeneral
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	jsonOutput     bool
	quiet          bool
	noColor        bool
	noInput        bool
	logLevel       string
	logFormat      string
	logFile        string
	logStderr      string
	persistenceDir string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	out := output.Default()

	rootCmd := &cobra.Command{
		Use:   "colony",
		Short: "Colony - desktop launcher for Singularity containers",
		Long: `Colony runs Singularity containers on the local machine, collects their
output, and keeps the user's container catalog. The desktop front end drives
it over a JSON-lines stream; a server variant exposes the same operations as
a versioned HTTP task API.

Get started:
  colony platform check   Verify or install the container runtime
  colony catalog add      Register a container image
  colony launch           Serve the desktop front end over stdio
  colony serve            Serve the envelope HTTP API`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			out.JSON = pickBoolFlagOrEnv(flags.jsonOutput, "COLONY_JSON")
			out.Quiet = pickBoolFlagOrEnv(flags.quiet, "COLONY_QUIET")
			out.NoInput = pickBoolFlagOrEnv(flags.noInput, "COLONY_NO_INPUT") || pickBoolFlagOrEnv(false, "CI")

			if flags.noColor {
				out.SetNoColor(true)

				color.NoColor = true
			}

			logCfg := observability.Config{
				Level:          pickFlagOrEnv(flags.logLevel, "COLONY_LOG_LEVEL", "info"),
				Format:         pickFlagOrEnv(flags.logFormat, "COLONY_LOG_FORMAT", "json"),
				LogFile:        pickFlagOrEnv(flags.logFile, "COLONY_LOG_FILE", ""),
				StderrMode:     pickFlagOrEnv(flags.logStderr, "COLONY_LOG_STDERR", "auto"),
				FallbackFile:   fallbackLogFile(),
				InteractiveTTY: out.Terminal().IsTTY && isInteractiveCommand(cmd.CommandPath()),
				SessionID:      uuid.NewString(),
				CommandPath:    cmd.CommandPath(),
				Version:        version,
				Commit:         commit,
			}

			logger, cleanup, err := observability.NewLogger(&logCfg)
			if err != nil {
				return &clierrors.CLIError{
					Message: fmt.Sprintf("Invalid logging configuration: %v", err),
					Hint:    "Use --log-level (error|warn|info|debug), --log-format (json|text), --log-stderr (auto|on|off), and/or --log-file",
					Code:    clierrors.ExitUsage,
				}
			}

			slog.SetDefault(logger)

			ctx := out.WithContext(cmd.Context())
			ctx = observability.WithLogger(ctx, logger)
			ctx = withPersistenceOverride(ctx, flags.persistenceDir)
			cmd.SetContext(ctx)

			if cleanup != nil {
				cmd.PostRunE = wrapPostRunCleanup(cmd.PostRunE, cleanup)
			}

			// OpenTelemetry tracing is opt-in via OTEL_ENABLED or COLONY_TELEMETRY.
			cfg := config.Load()

			telemetryShutdown, telemetryErr := observability.SetupTelemetry(ctx, &observability.TelemetryConfig{
				Enabled:     observability.IsTelemetryEnabled(),
				Endpoint:    cfg.TelemetryEndpoint(),
				Insecure:    cfg.TelemetryInsecure(),
				SampleRatio: cfg.TelemetrySampleRatio(),
				Version:     version,
				Commit:      commit,
			})
			if telemetryErr != nil {
				logger.Warn("telemetry initialization failed", slog.String("error", telemetryErr.Error()))
			}

			if telemetryShutdown != nil {
				cmd.PostRunE = wrapNamedPostRunCleanup(cmd.PostRunE, "telemetry resources", func() error {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()

					return telemetryShutdown(shutdownCtx)
				})
			}

			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flags.jsonOutput, "json", false, "Output in JSON format")
	pf.BoolVar(&flags.quiet, "quiet", false, "Minimal output (for CI)")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	pf.BoolVar(&flags.noInput, "no-input", false, "Disable interactive prompts")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: error, warn, info, debug")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: json, text")
	pf.StringVar(&flags.logFile, "log-file", "", "Optional structured log file path")
	pf.StringVar(&flags.logStderr, "log-stderr", "", "Structured logging to stderr: auto, on, off")
	pf.StringVar(&flags.persistenceDir, "persistence-dir", "", "Directory holding the catalog and the journal")

	rootCmd.SuggestionsMinimumDistance = 2

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &clierrors.CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("Run '%s --help' for available flags", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	})

	// Front ends
	rootCmd.AddCommand(newLaunchCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newHelperCmd())

	// Resource commands (noun-first)
	rootCmd.AddCommand(newCatalogCmd())
	rootCmd.AddCommand(newJournalCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newPlatformCmd())
	rootCmd.AddCommand(newConfigCmd())

	// Utility commands
	rootCmd.AddCommand(newPathsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func wrapPostRunCleanup(postRun func(*cobra.Command, []string) error, cleanup func() error) func(*cobra.Command, []string) error {
	return wrapNamedPostRunCleanup(postRun, "logger resources", cleanup)
}

func wrapNamedPostRunCleanup(postRun func(*cobra.Command, []string) error, name string, cleanup func() error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if postRun != nil {
			if err := postRun(cmd, args); err != nil {
				_ = cleanup()
				return err
			}
		}

		if err := cleanup(); err != nil {
			return fmt.Errorf("cleanup %s: %w", name, err)
		}

		return nil
	}
}

func pickBoolFlagOrEnv(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}

	v := strings.ToLower(strings.TrimSpace(os.Getenv(envKey)))

	return v == "1" || v == "true" || v == "yes"
}

func pickFlagOrEnv(flagValue, envKey, fallback string) string {
	trimmed := strings.TrimSpace(flagValue)
	if trimmed != "" {
		return trimmed
	}

	if envValue := strings.TrimSpace(os.Getenv(envKey)); envValue != "" {
		return envValue
	}

	return fallback
}

// fallbackLogFile is where logs go when stderr logging is off and no
// --log-file is given.
func fallbackLogFile() string {
	path, err := paths.DefaultLogFile()
	if err != nil {
		return ""
	}

	return path
}

// isInteractiveCommand reports whether the command draws progress on the
// terminal, where stderr log lines would tear the spinner.
func isInteractiveCommand(path string) bool {
	return path == "colony platform check"
}

// VersionInfo represents version information for JSON output.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// noArgs rejects positional arguments with a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &clierrors.CLIError{
			Message: fmt.Sprintf("'%s' accepts no arguments", cmd.CommandPath()),
			Hint:    fmt.Sprintf("Run '%s --help' for usage", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	}

	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show version information",
		Long:    `Display the colony binary version, git commit, and build date.`,
		Example: `  colony version`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			if out.JSON {
				return out.PrintJSON(VersionInfo{
					Version: version,
					Commit:  commit,
					Date:    date,
				})
			}

			out.Print("colony %s\n", version)
			out.Print("  commit: %s\n", commit)
			out.Print("  built:  %s\n", date)

			return nil
		},
	}
}
