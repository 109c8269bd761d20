package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/distronomicon/distronomicon/internal/orchestrator"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the currently installed release tag, resolved from bin/ symlinks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.App == "" {
				return fmt.Errorf("app name is required")
			}

			result, err := orchestrator.New(cfg).ShowVersion()
			if err != nil {
				return err
			}

			if !result.Installed {
				fmt.Fprintln(cmd.OutOrStdout(), "none installed")
				return nil
			}
			if result.Torn {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: bin/ symlinks disagree on the installed tag; reporting the majority\n")
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Tag)
			return nil
		},
	}
}
