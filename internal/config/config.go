package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"protonge/internal/paths"
	"protonge/internal/tools"
)

const (
	// EnvPath overrides the settings file location.
	EnvPath  = "PROTONGE_CONFIG"
	fileName = "config.yaml"
	appDir   = "protonge"
)

// Config captures the operator's persistent settings. Command-line flags
// take precedence over every field.
type Config struct {
	Version  int            `yaml:"version"`
	Steam    SteamConfig    `yaml:"steam"`
	Update   UpdateConfig   `yaml:"update"`
	Delete   DeleteConfig   `yaml:"delete"`
	Releases ReleasesConfig `yaml:"releases"`
}

// SteamConfig locates the Steam installation.
type SteamConfig struct {
	InstallPath        string `yaml:"install_path"`
	RestartAfterUpdate bool   `yaml:"restart_after_update"`
}

// UpdateConfig holds defaults for the update command.
type UpdateConfig struct {
	Exclude      []string `yaml:"exclude,omitempty"`
	ExcludeRegex string   `yaml:"exclude_regex,omitempty"`
	Script       string   `yaml:"script,omitempty"`
}

// DeleteConfig holds defaults for the delete command.
type DeleteConfig struct {
	Keep int `yaml:"keep"`
}

// ReleasesConfig describes where packages are downloaded from.
type ReleasesConfig struct {
	Repo            string        `yaml:"repo"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version: 1,
		Steam: SteamConfig{
			InstallPath: paths.DefaultSteamRoot,
		},
		Releases: ReleasesConfig{
			Repo:            tools.DefaultRepo,
			DownloadTimeout: 10 * time.Minute,
		},
	}
}

// DefaultPath returns $PROTONGE_CONFIG, or config.yaml under the user config
// directory.
func DefaultPath() (string, error) {
	if override, ok := os.LookupEnv(EnvPath); ok && override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("detect user config dir: %w", err)
	}
	return filepath.Join(base, appDir, fileName), nil
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills fields the YAML left empty.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.Steam.InstallPath == "" {
		c.Steam.InstallPath = defaults.Steam.InstallPath
	}
	if c.Releases.Repo == "" {
		c.Releases.Repo = defaults.Releases.Repo
	}
	if c.Releases.DownloadTimeout == 0 {
		c.Releases.DownloadTimeout = defaults.Releases.DownloadTimeout
	}
}

// ExcludePattern compiles the exclude regex. It returns nil when none is set.
func (c Config) ExcludePattern() (*regexp.Regexp, error) {
	if c.Update.ExcludeRegex == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.Update.ExcludeRegex)
	if err != nil {
		return nil, fmt.Errorf("exclude_regex: %w", err)
	}
	return re, nil
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}
