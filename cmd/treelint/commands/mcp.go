package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/treelint/internal/mcp"
	"github.com/Sumatoshi-tech/treelint/internal/observability"
)

// NewMCPCommand creates the mcp command, which serves lint tools to AI
// assistants over stdio.
func NewMCPCommand(globals *GlobalFlags, version string) *cobra.Command {
	var rulePaths []string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the Model Context Protocol server on stdio",
		Long: `MCP runs treelint as a Model Context Protocol server exposing two tools:
treelint_check lints a code snippet, treelint_rules lists the loaded rules.
Logs go to stderr so stdio stays clean for the protocol.`,
		Example: `  treelint mcp
  treelint mcp --rules ./rules`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(globals)
			if err != nil {
				return err
			}

			providers, err := initObservability(cfg, globals, observability.ModeMCP, version)
			if err != nil {
				return err
			}

			defer shutdownProviders(providers)

			if cfg.Observability.DiagnosticsAddr != "" {
				diagSrv, diagErr := observability.NewDiagnosticsServer(cfg.Observability.DiagnosticsAddr)
				if diagErr != nil {
					return diagErr
				}

				defer diagSrv.Close()

				providers.Logger.InfoContext(ctx, "diagnostics server listening", "addr", diagSrv.Addr())
			}

			registry, problems, err := buildRegistry(cfg, rulePaths)
			if err != nil {
				return err
			}

			for _, problem := range problems {
				providers.Logger.WarnContext(ctx, "rule problem", "error", problem.Error())
			}

			lintRunner, err := buildRunner(ctx, cfg, registry, providers)
			if err != nil {
				return err
			}

			redMetrics, err := observability.NewREDMetrics(providers.Meter)
			if err != nil {
				return fmt.Errorf("create red metrics: %w", err)
			}

			server := mcp.NewServer(mcp.ServerDeps{
				Registry: registry,
				Runner:   lintRunner,
				Logger:   providers.Logger,
				Metrics:  redMetrics,
				Tracer:   providers.Tracer,
			})

			providers.Logger.InfoContext(ctx, "starting mcp server",
				"version", version, "tools", server.ListToolNames(), "rules", registry.Len())

			return server.Run(ctx)
		},
	}

	cmd.Flags().StringSliceVar(&rulePaths, "rules", nil, "additional rule files, manifests, or directories")

	return cmd
}
