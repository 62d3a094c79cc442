package compat

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aymanbagabas/go-udiff"

	"protonge/internal/logx"
	"protonge/internal/paths"
	"protonge/internal/vdf"
	"protonge/internal/version"
)

// Mutator repoints applications at a tool version by editing config.vdf and
// the per-application version markers.
type Mutator struct {
	ConfigFile string
	Libraries  []paths.Library
	DryRun     bool
	Policy     MutationPolicy
	Logger     *slog.Logger
}

// Apply processes assignments in order and, unless DryRun is set, rewrites the
// whole config document once at the end. How a failing assignment
// affects the rest of the run is decided by Policy.
func (m Mutator) Apply(assignments []Assignment, target string) (Result, error) {
	logger := m.Logger
	if logger == nil {
		logger = logx.Discard()
	}

	canonical, err := version.Normalize(target)
	if err != nil {
		return Result{}, &MutationError{Op: "normalize target", Err: err}
	}
	result := Result{Target: canonical, DryRun: m.DryRun}

	doc, err := vdf.Load(m.ConfigFile)
	if err != nil {
		return result, &MutationError{Op: "load config", Err: err}
	}
	before, err := vdf.Marshal(doc)
	if err != nil {
		return result, &MutationError{Op: "encode config", Err: err}
	}

	mapping, err := doc.MapAt(mappingPath...)
	if err != nil {
		return result, &MutationError{Op: "resolve mapping", Err: err}
	}
	defaultVersion, err := mapping.StringAt(DefaultAppID, "name")
	if err != nil {
		return result, &MutationError{Op: "resolve default", Err: err}
	}
	result.Default = defaultVersion

	var failures []error
	for _, a := range assignments {
		change, err := m.apply(mapping, a, defaultVersion, canonical, logger)
		if err != nil {
			if m.Policy == AbortOnFirstFailure {
				return result, err
			}
			logger.Warn("assignment failed, continuing", "app", a.AppID, "err", err)
			failures = append(failures, err)
			continue
		}
		result.Changes = append(result.Changes, change)
	}

	after, err := vdf.Marshal(doc)
	if err != nil {
		return result, &MutationError{Op: "encode config", Err: err}
	}
	result.Preview = udiff.Unified("a/config.vdf", "b/config.vdf", string(before), string(after))

	if m.DryRun {
		logger.Debug("DRYRUN! Config file not written.")
		return result, errors.Join(failures...)
	}

	logger.Debug("Writing config file...", "path", m.ConfigFile)
	if err := vdf.Dump(doc, m.ConfigFile); err != nil {
		return result, &MutationError{Op: "write config", Err: err}
	}
	result.Written = true
	logger.Debug("Game(s) updated.")
	return result, errors.Join(failures...)
}

func (m Mutator) apply(mapping *vdf.Node, a Assignment, defaultVersion, target string, logger *slog.Logger) (Change, error) {
	logger.Debug(fmt.Sprintf("Processing %s", a.Name))

	if a.Source == defaultVersion {
		logger.Debug(fmt.Sprintf("%s uses the default version (%s), update the default instead.", a, defaultVersion))
		return Change{Assignment: a, Outcome: OutcomeUsesDefault}, nil
	}
	if a.AppID == DefaultAppID {
		a.Source = defaultVersion
	}
	logger.Debug(fmt.Sprintf("Changing %s from %s to %s", a, a.Source, target))

	change := Change{Assignment: a, Outcome: OutcomeUpdated}
	entry, ok := mapping.Get(a.AppID)
	if !ok {
		logger.Debug(fmt.Sprintf("%s is likely set to the default version. Skipping config entry.", a))
		change.Outcome = OutcomeImplicitDefault
	} else if err := entry.SetString("name", target); err != nil {
		return change, &MutationError{Op: "update mapping", Assignment: &a, Err: err}
	}

	if m.DryRun {
		return change, nil
	}
	for _, lib := range m.Libraries {
		marker := lib.VersionFile(a.AppID)
		exists, err := paths.FileExists(marker)
		if err != nil {
			return change, &MutationError{Op: "stat marker", Assignment: &a, Err: err}
		}
		if !exists {
			continue
		}
		logger.Debug(fmt.Sprintf("Writing %s with version %s", marker, target))
		if err := writeMarker(marker, target); err != nil {
			return change, &MutationError{Op: "write marker", Assignment: &a, Err: err}
		}
		change.Markers = append(change.Markers, marker)
	}
	return change, nil
}

// writeMarker replaces the marker content with exactly the identifier.
func writeMarker(path, id string) error {
	return os.WriteFile(path, []byte(id), 0o644)
}
