package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clierrors "github.com/colony-launcher/colony/internal/errors"
	"github.com/colony-launcher/colony/internal/helperserver"
	"github.com/colony-launcher/colony/internal/output"
)

func newHelperCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "helper",
		Short: "Run the loopback file-dialog helper",
		Long: `Run the helper server on its own. It answers file and directory dialog
requests from the front-end origin and stores a configuration posted to
/config/json at a path the user picks. A running instance on the same port
is asked to terminate first. The helper exits on GET /terminate or Ctrl-C.`,
		Example: `  colony helper
  colony helper --port 20400`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			e, err := loadEnv(cmd.Context())
			if err != nil {
				return err
			}

			if port == 0 {
				port = e.cfg.HelperPort()
			}

			srv := helperserver.New(helperserver.Options{
				Port:         port,
				FrontendPort: e.cfg.FrontendOriginPort(),
				BodyLimit:    e.cfg.BodyLimit(),
				Picker:       helperserver.DefaultPicker(),
				Translate:    e.host.Path,
				OnConfiguration: func(path string) {
					out.Success("Configuration saved to %s", path)
				},
				Logger: e.logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bound, err := srv.Start(ctx)
			if err != nil {
				return clierrors.HelperBindFailed(net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), err)
			}

			out.Info("Helper listening on http://127.0.0.1:%d", bound)

			select {
			case <-srv.Done():
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Stop(shutdownCtx); err != nil {
				return fmt.Errorf("stop helper: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default: helper.port)")

	return cmd
}
