// Package main provides the treelint CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/treelint/cmd/treelint/commands"
)

// Build metadata, injected via -ldflags at release time.
//
//nolint:gochecknoglobals // Linker-injected build metadata.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "treelint",
		Short: "Structural pattern-matching linter for syntax trees",
		Long: `treelint matches declarative structural rules against source code
syntax trees and reports findings.

Commands:
  check     Lint files and directories
  rules     List registered rules
  lsp       Start the LSP server on stdio
  mcp       Start the MCP server on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	globals := commands.RegisterGlobalFlags(rootCmd)

	rootCmd.AddCommand(commands.NewCheckCommand(globals, version))
	rootCmd.AddCommand(commands.NewRulesCommand(globals))
	rootCmd.AddCommand(commands.NewLSPCommand(globals, version))
	rootCmd.AddCommand(commands.NewMCPCommand(globals, version))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(commands.ExitUsage)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "treelint %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
