package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/treelint/internal/lsp"
	"github.com/Sumatoshi-tech/treelint/internal/observability"
)

// NewLSPCommand creates the lsp command, which serves findings to editors
// over stdio.
func NewLSPCommand(globals *GlobalFlags, version string) *cobra.Command {
	var rulePaths []string

	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Run the Language Server Protocol server on stdio",
		Long: `LSP runs treelint as a language server. Editors send document opens,
edits, and saves over stdio; the server lints each version in memory and
publishes diagnostics back. Logs go to stderr so stdio stays clean for the
protocol.`,
		Example: `  treelint lsp
  treelint lsp --rules ./rules`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(globals)
			if err != nil {
				return err
			}

			providers, err := initObservability(cfg, globals, observability.ModeLSP, version)
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

			providers.Logger.InfoContext(ctx, "starting lsp server",
				"version", version, "rules", registry.Len())

			err = lsp.NewServer(lintRunner, providers.Logger, version).Run()
			if err != nil {
				return fmt.Errorf("lsp server: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&rulePaths, "rules", nil, "additional rule files, manifests, or directories")

	return cmd
}
