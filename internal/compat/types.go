package compat

import (
	"fmt"
)

const (
	// DefaultAppID is the CompatToolMapping key Steam uses for the global default.
	DefaultAppID = "0"
	// DefaultAppName labels the pseudo-assignment that retargets the default.
	DefaultAppName = "Default Proton Version"
)

// mappingPath locates the app -> tool mapping inside config.vdf.
var mappingPath = []string{"InstallConfigStore", "Software", "Valve", "Steam", "CompatToolMapping"}

// MutationPolicy declares how a failing assignment affects the rest of a run.
type MutationPolicy int

const (
	// AbortOnFirstFailure stops at the first failing assignment and skips the
	// config write. Marker files written before the failure are not restored.
	AbortOnFirstFailure MutationPolicy = iota
	// ContinueOnFailure records a failing assignment, carries on with the rest
	// and still writes the config. The failures are returned joined.
	ContinueOnFailure
)

func (p MutationPolicy) String() string {
	switch p {
	case AbortOnFirstFailure:
		return "abort-on-first-failure"
	case ContinueOnFailure:
		return "continue-on-failure"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Assignment asks for one application to be moved off Source.
type Assignment struct {
	Name   string `json:"name"`
	AppID  string `json:"appid"`
	Source string `json:"source"`
}

// DefaultAssignment is the pseudo-assignment that retargets Steam's default tool.
func DefaultAssignment() Assignment {
	return Assignment{Name: DefaultAppName, AppID: DefaultAppID}
}

func (a Assignment) String() string {
	return fmt.Sprintf("%s(%s)", a.Name, a.AppID)
}

// Outcome classifies what happened to one assignment.
type Outcome string

const (
	// OutcomeUpdated means the mapping entry now names the target.
	OutcomeUpdated Outcome = "updated"
	// OutcomeUsesDefault means the app already follows the default and was left alone.
	OutcomeUsesDefault Outcome = "uses-default"
	// OutcomeImplicitDefault means Steam has no mapping entry yet; only marker files were touched.
	OutcomeImplicitDefault Outcome = "implicit-default"
)

// Change records the handling of one assignment.
type Change struct {
	Assignment Assignment `json:"assignment"`
	Outcome    Outcome    `json:"outcome"`
	Markers    []string   `json:"markers,omitempty"`
}

// Result summarises a mutation run.
type Result struct {
	Target  string   `json:"target"`
	Default string   `json:"default"`
	Changes []Change `json:"changes"`
	Written bool     `json:"written"`
	DryRun  bool     `json:"dry_run"`
	// Preview is a unified diff of the config document before and after.
	Preview string `json:"preview,omitempty"`
}

// MutationError wraps any failure while reading, resolving or writing the config.
type MutationError struct {
	Op         string
	Assignment *Assignment
	Err        error
}

func (e *MutationError) Error() string {
	if e.Assignment != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Assignment, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
