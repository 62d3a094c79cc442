package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// Validate checks the settings and returns structured findings.
func (c Config) Validate() []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateKeep()...)
	results = append(results, c.validateExcludeRegex()...)
	results = append(results, c.validateScript()...)
	results = append(results, c.validateReleases()...)
	results = append(results, c.validateSteamPath()...)
	return results
}

// HasErrors reports whether any result is an error.
func HasErrors(results []ValidationResult) bool {
	for _, r := range results {
		if r.Level == "error" {
			return true
		}
	}
	return false
}

func (c Config) validateKeep() []ValidationResult {
	if c.Delete.Keep < 0 {
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("delete.keep must not be negative, got %d", c.Delete.Keep),
		}}
	}
	return nil
}

func (c Config) validateExcludeRegex() []ValidationResult {
	if _, err := c.ExcludePattern(); err != nil {
		return []ValidationResult{{Level: "error", Message: fmt.Sprintf("update.%v", err)}}
	}
	return nil
}

func (c Config) validateScript() []ValidationResult {
	script := strings.TrimSpace(c.Update.Script)
	if script == "" {
		return nil
	}
	expanded, err := homedir.Expand(script)
	if err != nil {
		return []ValidationResult{{Level: "error", Message: fmt.Sprintf("update.script: %v", err)}}
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return []ValidationResult{{Level: "error", Message: fmt.Sprintf("update.script %q not found", script)}}
	}
	if info.IsDir() {
		return []ValidationResult{{Level: "error", Message: fmt.Sprintf("update.script %q is a directory", script)}}
	}
	if info.Mode()&0o111 == 0 {
		return []ValidationResult{{Level: "warning", Message: fmt.Sprintf("update.script %q is not executable", script)}}
	}
	return nil
}

func (c Config) validateReleases() []ValidationResult {
	var results []ValidationResult
	if !repoPattern.MatchString(c.Releases.Repo) {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("releases.repo %q must look like owner/name", c.Releases.Repo),
		})
	}
	if c.Releases.DownloadTimeout < 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: "releases.download_timeout must not be negative",
		})
	}
	return results
}

func (c Config) validateSteamPath() []ValidationResult {
	expanded, err := homedir.Expand(c.Steam.InstallPath)
	if err != nil {
		return []ValidationResult{{Level: "error", Message: fmt.Sprintf("steam.install_path: %v", err)}}
	}
	if _, err := os.Stat(expanded); err != nil {
		return []ValidationResult{{
			Level:   "warning",
			Message: fmt.Sprintf("steam.install_path %q does not exist", c.Steam.InstallPath),
		}}
	}
	return nil
}
