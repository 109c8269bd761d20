// Package main implements the distronomicon CLI: check, update,
// version, and unlock over a single managed application's install
// pipeline.
//
// Grounded on the cobra root-command construction in the pack's
// invowk-invowk/cmd/invowk/root.go and upgrade.go: persistent flags
// bound once on the root command, subcommands built as small
// newXCommand() constructors, and RunE handlers that print to
// cmd.OutOrStdout()/cmd.ErrOrStderr() rather than the bare stdlib
// writers so tests can capture output. NeboLoop's updater package
// grounds the domain logic these commands invoke; cobra's wiring
// idiom itself comes from invowk since the teacher does not use cobra.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/distronomicon/distronomicon/internal/config"
	"github.com/distronomicon/distronomicon/internal/errkind"
	"github.com/distronomicon/distronomicon/internal/logging"
)

var (
	cfgFile          string
	flagApp          string
	flagRepoOwner    string
	flagRepoName     string
	flagAssetPattern string
	flagSumPattern   string
	flagToken        string
	flagHost         string
	flagRestart      string
	flagRetain       int
	flagSkipVerify   bool
	flagPrerelease   bool
	flagInstallRoot  string
	flagStateDir     string
	flagVerbose      bool
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "distronomicon",
		Short:         "Atomic, lock-serialized release installer for a single managed app",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.yaml")
	cmd.PersistentFlags().StringVar(&flagApp, "app", "", "logical name of the managed app")
	cmd.PersistentFlags().StringVar(&flagRepoOwner, "repo-owner", "", "GitHub repository owner")
	cmd.PersistentFlags().StringVar(&flagRepoName, "repo-name", "", "GitHub repository name")
	cmd.PersistentFlags().StringVar(&flagAssetPattern, "asset-pattern", "", "regex matched against release asset names")
	cmd.PersistentFlags().StringVar(&flagSumPattern, "checksum-pattern", "", "regex matched against the checksum manifest asset name")
	cmd.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token for the release API (default: $GITHUB_TOKEN)")
	cmd.PersistentFlags().StringVar(&flagHost, "api-host", "", "override the release API host")
	cmd.PersistentFlags().StringVar(&flagRestart, "restart-command", "", "shell command to run after a successful switch")
	cmd.PersistentFlags().IntVar(&flagRetain, "retain", 0, "number of releases to keep (default 3)")
	cmd.PersistentFlags().BoolVar(&flagSkipVerify, "skip-verification", false, "skip checksum verification")
	cmd.PersistentFlags().BoolVar(&flagPrerelease, "prerelease", false, "allow prerelease versions")
	cmd.PersistentFlags().StringVar(&flagInstallRoot, "install-root", "", "root directory for releases and bin (default /opt)")
	cmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "", "directory for the durable state record")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose diagnostics")

	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newUpdateCommand())
	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newUnlockCommand())

	return cmd
}

// loadConfig builds a Config from the config file, .env, and
// environment variables, then overlays any CLI flags the user set —
// CLI flags are the highest-precedence source per spec §6.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if flagApp != "" {
		cfg.App = flagApp
	}
	if flagRepoOwner != "" {
		cfg.RepoOwner = flagRepoOwner
	}
	if flagRepoName != "" {
		cfg.RepoName = flagRepoName
	}
	if flagAssetPattern != "" {
		cfg.AssetPattern = flagAssetPattern
	}
	if flagSumPattern != "" {
		cfg.ChecksumPattern = flagSumPattern
	}
	if flagToken != "" {
		cfg.Token = flagToken
	} else if cfg.Token == "" {
		cfg.Token = os.Getenv("GITHUB_TOKEN")
	}
	if flagHost != "" {
		cfg.APIHost = flagHost
	}
	if flagRestart != "" {
		cfg.RestartCommand = flagRestart
	}
	if cmd.Flags().Changed("retain") {
		cfg.RetentionCount = flagRetain
	}
	if cmd.Flags().Changed("skip-verification") {
		cfg.SkipVerification = flagSkipVerify
	}
	if cmd.Flags().Changed("prerelease") {
		cfg.AllowPrerelease = flagPrerelease
	}
	if flagInstallRoot != "" {
		cfg.InstallRoot = flagInstallRoot
	}
	if flagStateDir != "" {
		cfg.StateDir = flagStateDir
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = flagVerbose
	}

	logging.SetVerbose(cfg.Verbose)
	return cfg, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if kind := errkind.KindOf(err); kind != "" {
			fmt.Fprintf(os.Stderr, "%s: %v\n", kind, err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
