package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cloudmedia/internal/container"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, appConfig, appLog)
	if err != nil {
		return err
	}
	defer c.Close()

	appLog.Info().
		Str("artifact_backend", c.Store.Name()).
		Bool("ghostscript", c.Renderer.IsAvailable()).
		Msg("starting cloudmedia")

	if err := c.Server().Run(ctx); err != nil {
		return err
	}
	appLog.Info().Msg("shutdown complete")
	return nil
}
