package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zeusync/recsync/internal/config"
	"github.com/zeusync/recsync/internal/core/observability/log"
	"github.com/zeusync/recsync/internal/injector"
)

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var cursor string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync the configured world until interrupted or the source ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if cursor != "" {
				cfg.Sync.Cursor = cursor
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSync(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "start from this source cursor instead of the configured one")

	return cmd
}

func runSync(ctx context.Context, cfg *config.Config) error {
	a, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() { _ = a.Logger.Sync() }()

	a.Logger.Info("starting sync",
		log.String("source", cfg.Source.Kind),
		log.Int("components", len(cfg.Components)),
	)
	if err := a.Run(ctx); err != nil {
		a.Logger.Error("sync stopped", log.Error(err))
		return err
	}
	a.Logger.Info("sync finished")
	return nil
}
