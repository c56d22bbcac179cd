// Package main provides the parsegraph CLI: a small demo front-end over
// the library (pkg/analyzer, pkg/document, pkg/grammar/jsongrammar) that
// loads a source file, builds a Document, and either dumps its token/node
// stream or launches the bundled language server.
//
// Trimmed from the teacher's cmd/codefang/main.go shape (cobra root
// command, persistent verbose/quiet flags, version subcommand); the
// memory watchdog and pprof scaffolding are dropped, since this CLI has
// no long-running batch pipeline to babysit.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/parsegraph/pkg/version"
)

var (
	cfgFile string //nolint:gochecknoglobals // CLI flag variable
	verbose bool   //nolint:gochecknoglobals // CLI flag variable
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "parsegraph",
		Short:         "parsegraph - incremental compiler front-end demo",
		Long:          `parsegraph loads a JSON source file into an incremental Document and inspects or serves it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./.parsegraph.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(tokensCmd())
	rootCmd.AddCommand(treeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "parsegraph %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
