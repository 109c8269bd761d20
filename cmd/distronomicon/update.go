package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/distronomicon/distronomicon/internal/orchestrator"
)

func newUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Install the latest applicable release and switch bin symlinks to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			outcome, err := orchestrator.New(cfg).Update(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
			return nil
		},
	}
}
