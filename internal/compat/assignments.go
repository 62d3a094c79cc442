package compat

import (
	"regexp"
	"slices"

	"protonge/internal/inventory"
)

// Filter excludes games from an update by app id or by a pattern on the name.
type Filter struct {
	ExcludeIDs   []string
	ExcludeNames *regexp.Regexp
}

// Excluded reports whether the record should be left alone.
func (f Filter) Excluded(r inventory.UsageRecord) bool {
	if slices.Contains(f.ExcludeIDs, r.AppID) {
		return true
	}
	return f.ExcludeNames != nil && f.ExcludeNames.MatchString(r.Name)
}

// BuildAssignments turns usage evidence into assignments, versions in
// first-seen order and records in scan order. When includeDefault is set the
// default pseudo-assignment is appended last.
func BuildAssignments(usage *inventory.UsageStats, includeGames, includeDefault bool, filter Filter) (assignments []Assignment, excluded []Assignment) {
	if includeGames && usage != nil {
		for _, r := range usage.All() {
			a := Assignment{Name: r.Name, AppID: r.AppID, Source: r.Version}
			if filter.Excluded(r) {
				excluded = append(excluded, a)
				continue
			}
			assignments = append(assignments, a)
		}
	}
	if includeDefault {
		assignments = append(assignments, DefaultAssignment())
	}
	return assignments, excluded
}
