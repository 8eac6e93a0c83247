package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/birdlens/birdlens/internal/api"
	"github.com/birdlens/birdlens/internal/app"
	"github.com/birdlens/birdlens/internal/buildinfo"
	"github.com/birdlens/birdlens/internal/conf"
)

// Command creates the serve command that runs the HTTP API.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the identification API server",
		Long:  "Serve photo identification, collection and registry endpoints over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := app.New(ctx, settings, build, app.All)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []api.ServerOption{api.WithBuildInfo(build)}
			if settings.Metrics.Enabled {
				opts = append(opts, api.WithMetrics(a.Metrics))
			}
			server, err := api.New(api.ConfigFromSettings(settings), a.Pipeline, a.Registry, a.Collection, opts...)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("port", viper.GetString("webserver.port"), "Port to listen on")
	if err := viper.BindPFlag("webserver.port", cmd.Flags().Lookup("port")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
