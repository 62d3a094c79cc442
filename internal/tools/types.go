package tools

import (
	"errors"
	"fmt"
)

const (
	// DefaultRepo is the GitHub repository releases are fetched from.
	DefaultRepo = "GloriousEggroll/proton-ge-custom"

	defaultAPIBase      = "https://api.github.com"
	defaultDownloadBase = "https://github.com"
	userAgent           = "protonge/1.0"
)

// ErrAlreadyInstalled is returned when the requested version is already on disk.
// The accompanying Result is still populated.
var ErrAlreadyInstalled = errors.New("version already installed")

// TransferError reports a failed network request. Nothing is installed when
// one is returned.
type TransferError struct {
	URL    string
	Status string
	Err    error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %s", e.URL, e.Status)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Release identifies a downloadable package.
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Result describes an installed package.
type Result struct {
	Version  string `json:"version"`
	Dir      string `json:"dir"`
	Checksum string `json:"checksum,omitempty"`
	// Fetched is false when the package was already present.
	Fetched bool `json:"fetched"`
}

// ProgressFunc receives download progress. total is -1 when unknown.
type ProgressFunc func(version string, done, total int64)
