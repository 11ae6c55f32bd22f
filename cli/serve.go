package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/construdocs/construdocs/pkg/telemetry"
	"github.com/construdocs/construdocs/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := telemetry.Init(ctx, telemetry.Config{
				ServiceName:    "construdocs",
				ServiceVersion: Version,
			})
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					log.Warn("telemetry shutdown", "error", err)
				}
			}()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			srv := server.New(a.store, a.retriever, a.orchestrator, a.uploader,
				server.WithAnalytics(a.sink))
			log.Info("serving http api", "addr", addr)
			return srv.Run(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}
