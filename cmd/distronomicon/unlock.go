package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/distronomicon/distronomicon/internal/orchestrator"
)

func newUnlockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Forcibly remove the app's lock file (diagnostic use only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.App == "" {
				return fmt.Errorf("app name is required")
			}

			if err := orchestrator.New(cfg).Unlock(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "lock removed")
			return nil
		},
	}
}
