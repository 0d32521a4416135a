package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zeusync/recsync/internal/config"
	"github.com/zeusync/recsync/internal/core/observability/log"
	"github.com/zeusync/recsync/internal/injector"
)

func NewRelayCommand(rootOpts *RootOptions) *cobra.Command {
	var listen, transport string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Serve the configured source to remote consumers",
		Long: `Serve the configured source to remote consumers over WebSocket or QUIC.
Each consumer subscription replays the source from the cursor it asks for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Relay.Listen = listen
			}
			if transport != "" {
				cfg.Relay.Transport = transport
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			r, err := injector.InitializeRelay(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = r.Logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			r.Logger.Info("starting relay",
				log.String("source", cfg.Source.Kind),
				log.String("transport", cfg.Relay.Transport),
				log.String("listen", cfg.Relay.Listen),
			)
			return r.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides relay.listen")
	cmd.Flags().StringVar(&transport, "transport", "", "websocket or quic, overrides relay.transport")

	return cmd
}
