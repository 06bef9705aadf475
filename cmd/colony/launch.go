package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/colony-launcher/colony/internal/broker"
	"github.com/colony-launcher/colony/internal/helperserver"
	"github.com/colony-launcher/colony/internal/observability"
	"github.com/colony-launcher/colony/internal/output"
	"github.com/colony-launcher/colony/internal/platform"
)

func newLaunchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "launch",
		Short: "Serve the desktop front end over stdio",
		Long: `Run the task broker for the desktop front end. Requests are read from stdin
as one JSON object per line ({"id","kind","data"}) and responses are written to
stdout the same way ({"request_id","kind","data"}). The broker exits after a
StopProgram request or when stdin closes.`,
		Example: `  colony launch
  colony launch --log-file /tmp/colony.log --log-stderr off`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the response stream.
			output.FromContext(cmd.Context()).Divert()

			e, err := loadEnv(cmd.Context())
			if err != nil {
				return err
			}

			cat, err := e.loadCatalog()
			if err != nil {
				return err
			}

			sup, err := e.supervisor()
			if err != nil {
				return err
			}

			b := broker.New(broker.Options{
				Supervisor:  sup,
				Catalog:     cat,
				CatalogPath: e.catalogPath(),
				Host:        e.host,
				Platform: platform.PlanOptions{
					GOOS:         runtime.GOOS,
					Distribution: e.cfg.Distribution(),
					InstallDir:   e.dir,
				},
				Helper: helperserver.Options{
					Port:         e.cfg.HelperPort(),
					FrontendPort: e.cfg.FrontendOriginPort(),
					BodyLimit:    e.cfg.BodyLimit(),
					Picker:       helperserver.DefaultPicker(),
					StartDir:     startDir(cat.LastSelectedContainerDir),
					Translate:    e.host.Path,
				},
				StopCommand: e.stopCommand(),
				Logger:      e.logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runBroker(ctx, b, e.logger)
		},
	}
}

// runBroker drives b over stdio until the stream or the broker ends.
func runBroker(ctx context.Context, b *broker.Broker, logger *slog.Logger) error {
	logger = observability.Component(logger, "launch")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	serveErr := broker.ServeLines(ctx, b, os.Stdin, os.Stdout)
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logger.Error("stdio stream failed", slog.String("error", serveErr.Error()))
	}

	cancel()

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}

	return nil
}

func startDir(last *string) string {
	if last == nil {
		return ""
	}

	return *last
}
