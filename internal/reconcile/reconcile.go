// Package reconcile derives installed, used and unused version sets from a scan.
//
// Ordering is plain lexicographic string order. That is only an approximation
// of release recency: "GE-Proton10-1" sorts before "GE-Proton9-20". The keep
// rule inherits the quirk, so with both unused and keep=1 the 9-20 release is
// the one retained.
package reconcile

import (
	"sort"

	"protonge/internal/inventory"
	"protonge/internal/version"
)

// RetentionPolicy exempts the Keep greatest unused identifiers. Keep <= 0 disables it.
type RetentionPolicy struct {
	Keep int
}

// VersionSets is the reconciled view. Unused already excludes Exempt.
type VersionSets struct {
	Installed []string `json:"installed"`
	Used      []string `json:"used"`
	Unused    []string `json:"unused"`
	Exempt    []string `json:"exempt,omitempty"`
}

// Reconcile computes the sets from installed identifiers and usage evidence.
func Reconcile(installed []string, usage *inventory.UsageStats, policy RetentionPolicy) VersionSets {
	var usedRaw []string
	if usage != nil {
		usedRaw = usage.Versions()
	}

	sets := VersionSets{
		Installed: canonicalSorted(installed),
		Used:      canonicalSorted(usedRaw),
	}

	used := make(map[string]struct{}, len(sets.Used))
	for _, v := range sets.Used {
		used[v] = struct{}{}
	}
	unused := []string{}
	for _, v := range sets.Installed {
		if _, ok := used[v]; !ok {
			unused = append(unused, v)
		}
	}
	sort.Strings(unused)

	sets.Unused, sets.Exempt = applyRetention(unused, policy.Keep)
	return sets
}

// FromInventory is Reconcile over a scan result.
func FromInventory(inv inventory.Inventory, policy RetentionPolicy) VersionSets {
	return Reconcile(inv.InstalledIDs(), inv.Usage, policy)
}

// applyRetention splits off the last keep entries, clamping so a large keep
// exempts everything rather than wrapping around.
func applyRetention(unused []string, keep int) (remaining, exempt []string) {
	if keep <= 0 {
		return unused, nil
	}
	if keep > len(unused) {
		keep = len(unused)
	}
	cut := len(unused) - keep
	return unused[:cut:cut], unused[cut:]
}

func canonicalSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := []string{}
	for _, v := range in {
		if !version.IsCanonical(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
