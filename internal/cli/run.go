package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lcu-draft-client/internal/app"
	"github.com/DoyleJ11/lcu-draft-client/internal/config"
	"github.com/DoyleJ11/lcu-draft-client/internal/logging"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the League client and send drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Filter)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.New(cfg, logger).Run(ctx); err != nil {
				logger.Error("client stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("endpoint", config.DefaultEndpoint, "draft ingestion endpoint")
	cmd.Flags().String("status-addr", "127.0.0.1:7878", "local status api address, empty disables it")
	cmd.Flags().String("lockfile", "", "League client lockfile (default: standard install locations)")
	cmd.Flags().Bool("resolve-names", true, "send champion names instead of numeric ids")
	cmd.Flags().String("redis-url", "", "redis url for caching champion data")
	return cmd
}
