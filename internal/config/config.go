// Package config loads the install pipeline's settings from a YAML
// file, a .env file, and environment variables, in that increasing
// order of precedence — CLI flags, applied by the caller after Load
// returns, take precedence over all three.
//
// Grounded on the DefaultConfig/Load/LoadFrom pattern in the teacher's
// internal/config/config.go: yaml.v3 unmarshal into a struct seeded
// with defaults, os.ExpandEnv applied to string fields read from the
// file. Generalized here with a .env loading pass (github.com/joho/
// godotenv, used by the pack's release-updater reference for local
// credential injection) and XDG-based default directories.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

// Config holds every setting the install pipeline needs for a single
// managed app.
type Config struct {
	App                string `yaml:"app"`
	RepoOwner          string `yaml:"repo_owner"`
	RepoName           string `yaml:"repo_name"`
	AssetPattern       string `yaml:"asset_pattern"`
	ChecksumPattern    string `yaml:"checksum_pattern,omitempty"`
	Token              string `yaml:"token,omitempty"`
	APIHost            string `yaml:"api_host,omitempty"`
	AllowPrerelease    bool   `yaml:"allow_prerelease"`
	SkipVerification   bool   `yaml:"skip_verification"`
	RestartCommand     string `yaml:"restart_command,omitempty"`
	RetentionCount     int    `yaml:"retention_count"`
	InstallRoot        string `yaml:"install_root"`
	StateDir           string `yaml:"state_dir"`
	LockDir            string `yaml:"lock_dir"`
	Verbose            bool   `yaml:"verbose"`
}

// DefaultConfig returns a Config seeded with the pipeline's defaults:
// three retained releases, /opt as the install root, and the XDG state
// and runtime directories for the durable record and lock file.
func DefaultConfig() *Config {
	return &Config{
		AllowPrerelease:  false,
		SkipVerification: false,
		RetentionCount:   3,
		InstallRoot:      "/opt",
		StateDir:         filepath.Join(xdg.StateHome, "distronomicon"),
		LockDir:          defaultLockDir(),
	}
}

func defaultLockDir() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, "distronomicon")
	}
	return filepath.Join(xdg.StateHome, "distronomicon", "lock")
}

// Load reads configPath (if it exists), a sibling .env file (if
// present), and environment variables, merging them into a Config in
// that order — each later source overrides fields the earlier ones
// set. A missing config file is not an error; defaults and the
// environment still apply.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, errkind.Wrap(errkind.State, "read config file", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errkind.Wrap(errkind.State, "parse config file", err)
			}
		}

		envPath := filepath.Join(filepath.Dir(configPath), ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, errkind.Wrap(errkind.State, "load .env file", err)
			}
		}
	}

	cfg.expandFromFile()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// expandFromFile expands $VAR references left in string fields read
// from the YAML file, matching the teacher's os.ExpandEnv-on-load
// convention.
func (c *Config) expandFromFile() {
	c.Token = os.ExpandEnv(c.Token)
	c.RestartCommand = os.ExpandEnv(c.RestartCommand)
}

// applyEnvOverrides overlays environment variables on top of the
// file-derived config, matching spec precedence: CLI flag > env var >
// config file > default. The CLI layer applies flags after Load
// returns.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("DISTRONOMICON_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("DISTRONOMICON_API_HOST"); v != "" {
		c.APIHost = v
	}
	if v := os.Getenv("DISTRONOMICON_ASSET_PATTERN"); v != "" {
		c.AssetPattern = v
	}
	if v := os.Getenv("DISTRONOMICON_CHECKSUM_PATTERN"); v != "" {
		c.ChecksumPattern = v
	}
	if v := os.Getenv("DISTRONOMICON_RESTART_COMMAND"); v != "" {
		c.RestartCommand = v
	}
	if v := os.Getenv("DISTRONOMICON_INSTALL_ROOT"); v != "" {
		c.InstallRoot = v
	}
	if v := os.Getenv("DISTRONOMICON_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("DISTRONOMICON_LOCK_DIR"); v != "" {
		c.LockDir = v
	}
	if v, ok := parseBoolEnv("DISTRONOMICON_ALLOW_PRERELEASE"); ok {
		c.AllowPrerelease = v
	}
	if v, ok := parseBoolEnv("DISTRONOMICON_SKIP_VERIFICATION"); ok {
		c.SkipVerification = v
	}
	if v, ok := parseBoolEnv("DISTRONOMICON_VERBOSE"); ok {
		c.Verbose = v
	}
	if v := os.Getenv("DISTRONOMICON_RETENTION_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RetentionCount = n
		}
	}
}

func parseBoolEnv(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Validate checks that the required fields are present.
func (c *Config) Validate() error {
	if c.App == "" {
		return fmt.Errorf("app name is required")
	}
	if c.RepoOwner == "" || c.RepoName == "" {
		return fmt.Errorf("repo_owner and repo_name are required")
	}
	if c.AssetPattern == "" {
		return fmt.Errorf("asset_pattern is required")
	}
	if c.RetentionCount < 1 {
		return fmt.Errorf("retention_count must be at least 1")
	}
	return nil
}

// AppRoot returns <install-root>/<app>.
func (c *Config) AppRoot() string {
	return filepath.Join(c.InstallRoot, c.App)
}

// ReleasesDir returns <install-root>/<app>/releases.
func (c *Config) ReleasesDir() string {
	return filepath.Join(c.AppRoot(), "releases")
}

// BinDir returns <install-root>/<app>/bin.
func (c *Config) BinDir() string {
	return filepath.Join(c.AppRoot(), "bin")
}

// StagingDir returns <install-root>/<app>/staging.
func (c *Config) StagingDir() string {
	return filepath.Join(c.AppRoot(), "staging")
}

// StatePath returns <state-dir>/<app>/state.json.
func (c *Config) StatePath() string {
	return filepath.Join(c.StateDir, c.App, "state.json")
}
