package inventory

import (
	"fmt"

	"protonge/internal/paths"
)

// ScanPolicy declares how per-application read failures are treated. Tool
// directory and library manifest failures are always fatal.
type ScanPolicy int

const (
	// SkipMissing ignores absent marker and manifest files; any other failure aborts.
	SkipMissing ScanPolicy = iota
	// FailOnMissing aborts on absent per-application files as well.
	FailOnMissing
)

func (p ScanPolicy) String() string {
	switch p {
	case SkipMissing:
		return "skip-missing"
	case FailOnMissing:
		return "fail-on-missing"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Package is an installed compatibility tool.
type Package struct {
	ID  string `json:"id"`
	Dir string `json:"dir"`
}

// UsageRecord is evidence that one application runs with one tool version.
type UsageRecord struct {
	Version string `json:"version"`
	Name    string `json:"name"`
	AppID   string `json:"appid"`
	Library string `json:"library"`
}

// UsageStats groups usage records by version. Versions keep first-seen order
// and records keep scan order.
type UsageStats struct {
	order   []string
	records map[string][]UsageRecord
}

// NewUsageStats returns an empty collection.
func NewUsageStats() *UsageStats {
	return &UsageStats{records: map[string][]UsageRecord{}}
}

// Add appends a record under its version.
func (u *UsageStats) Add(r UsageRecord) {
	if _, ok := u.records[r.Version]; !ok {
		u.order = append(u.order, r.Version)
	}
	u.records[r.Version] = append(u.records[r.Version], r)
}

// Versions returns the versions in first-seen order.
func (u *UsageStats) Versions() []string {
	out := make([]string, len(u.order))
	copy(out, u.order)
	return out
}

// Records returns the records for a version in scan order.
func (u *UsageStats) Records(version string) []UsageRecord {
	return u.records[version]
}

// All flattens every record, grouped by version in first-seen order.
func (u *UsageStats) All() []UsageRecord {
	var out []UsageRecord
	for _, v := range u.order {
		out = append(out, u.records[v]...)
	}
	return out
}

// Len reports the number of distinct versions.
func (u *UsageStats) Len() int {
	return len(u.order)
}

// Inventory is the result of one scan: where libraries live, which tools are
// installed and which applications use them.
type Inventory struct {
	Libraries []paths.Library
	Installed []Package
	Usage     *UsageStats
}

// InstalledIDs lists the installed identifiers in scan order.
func (inv Inventory) InstalledIDs() []string {
	ids := make([]string, 0, len(inv.Installed))
	for _, p := range inv.Installed {
		ids = append(ids, p.ID)
	}
	return ids
}

// PackageDir returns the directory holding the installed identifier.
func (inv Inventory) PackageDir(id string) (string, bool) {
	for _, p := range inv.Installed {
		if p.ID == id {
			return p.Dir, true
		}
	}
	return "", false
}

// IsInstalled reports whether id is present among installed packages.
func (inv Inventory) IsInstalled(id string) bool {
	_, ok := inv.PackageDir(id)
	return ok
}

// ScanError is a structural failure that leaves no usable state.
type ScanError struct {
	Stage string
	Path  string
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %s: %v", e.Stage, e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
