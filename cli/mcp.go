package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/construdocs/construdocs/mcpserver"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose search and QA as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return mcpserver.NewServer(a.retriever, a.orchestrator, Version).Run(ctx)
		},
	}
}
