package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/parsegraph/pkg/analyzer"
)

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := analyzer.LoadConfig(cfgFile)
			if err != nil {
				return err
			}

			data, err := cfg.Dump()
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), string(data))

			return nil
		},
	}
}
