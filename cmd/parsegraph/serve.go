package main

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/parsegraph/pkg/analyzer"
	"github.com/Sumatoshi-tech/parsegraph/pkg/grammar/jsongrammar"
	"github.com/Sumatoshi-tech/parsegraph/pkg/langserver"
	"github.com/Sumatoshi-tech/parsegraph/pkg/telemetry"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON language server (stdio)",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe()
		},
	}

	return cmd
}

func runServe() error {
	cfg, err := analyzer.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	cfg.Telemetry.ServiceName = "parsegraph"
	cfg.Telemetry.Mode = telemetry.AppMode("langserver")

	providers, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return err
	}

	metrics, err := telemetry.NewREDMetrics(providers.Meter)
	if err != nil {
		return err
	}

	an := analyzer.New(*cfg, metrics, providers.Logger)

	grammar := langserver.Grammar{
		Scanner:    jsongrammar.Scanner{},
		Parse:      jsongrammar.Grammar,
		Classifier: jsongrammar.Classifier,
		Classify:   jsongrammar.Classify,
	}

	srv := langserver.NewServer(an, grammar, providers.Logger)
	srv.Run()

	return nil
}
