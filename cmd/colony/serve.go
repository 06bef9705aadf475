package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/colony-launcher/colony/internal/apiserver"
	"github.com/colony-launcher/colony/internal/helperserver"
	"github.com/colony-launcher/colony/internal/output"
	"github.com/colony-launcher/colony/internal/paths"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the envelope HTTP API",
		Long: `Run the server variant: a versioned HTTP task API on a single /api endpoint.
Every request envelope is recorded in the journal before it runs and its
response after. Envelopes for remote machines are refused until remote
execution exists. Resolved journal rows older than journal.retention are
pruned at start.`,
		Example: `  colony serve
  colony serve --listen 127.0.0.1:9000`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			e, err := loadEnv(cmd.Context())
			if err != nil {
				return err
			}

			j, err := e.openJournal(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			if _, err := j.PruneArchived(cmd.Context(), time.Now().Add(-e.cfg.JournalRetention())); err != nil {
				e.logger.Warn("journal prune failed", slog.String("error", err.Error()))
			}

			sup, err := e.supervisor()
			if err != nil {
				return err
			}

			downloads, err := paths.DownloadsDir()
			if err != nil {
				e.logger.Warn("downloads disabled", slog.String("error", err.Error()))
			}

			if listen == "" {
				listen = e.cfg.APIListen()
			}

			srv := apiserver.New(apiserver.Options{
				Addr:        listen,
				BodyLimit:   e.cfg.BodyLimit(),
				Origins:     helperserver.FrontendOrigins(e.cfg.FrontendOriginPort()),
				Supervisor:  sup,
				Host:        e.host,
				Journal:     j,
				DownloadDir: downloads,
				Logger:      e.logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out.Info("Serving the task API on http://%s%s", listen, apiserver.PathAPI)

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: api.listen)")

	return cmd
}
