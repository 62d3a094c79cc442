package retention

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"protonge/internal/logx"
)

// Status distinguishes the ways a deletion run can end.
type Status string

const (
	// StatusNothingToDelete means there were no candidates; nothing was asked.
	StatusNothingToDelete Status = "nothing-to-delete"
	// StatusDeclined means the operator did not confirm; nothing was removed.
	StatusDeclined Status = "declined"
	// StatusDeleted means removal ran. Individual failures are in the returned error.
	StatusDeleted Status = "deleted"
)

// Candidate is an installed tool scheduled for removal.
type Candidate struct {
	ID  string `json:"id"`
	Dir string `json:"dir"`
}

// Locator maps an identifier to its installed directory.
type Locator interface {
	PackageDir(id string) (string, bool)
}

// PlanDeletion returns the unused identifiers that are not exempt, with their
// directories. Identifiers the locator does not know are dropped.
func PlanDeletion(unused, exempt []string, loc Locator) []Candidate {
	skip := make(map[string]struct{}, len(exempt))
	for _, id := range exempt {
		skip[id] = struct{}{}
	}
	var plan []Candidate
	for _, id := range unused {
		if _, ok := skip[id]; ok {
			continue
		}
		dir, ok := loc.PackageDir(id)
		if !ok {
			continue
		}
		plan = append(plan, Candidate{ID: id, Dir: dir})
	}
	return plan
}

// Result reports what a deletion run did.
type Result struct {
	Status  Status   `json:"status"`
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// Executor removes planned candidates. Removal continues past individual
// failures; every failure is joined into the returned error.
type Executor struct {
	Confirmer Confirmer
	Logger    *slog.Logger
	// Remove defaults to os.RemoveAll.
	Remove func(path string) error
}

// Execute removes plan. With requireConfirmation set the Confirmer must
// approve the whole list first.
func (e Executor) Execute(plan []Candidate, requireConfirmation bool) (Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = logx.Discard()
	}
	if len(plan) == 0 {
		logger.Info("No unused versions found.")
		return Result{Status: StatusNothingToDelete}, nil
	}

	if requireConfirmation {
		if e.Confirmer == nil {
			return Result{}, errors.New("deletion requires confirmation but no prompt is available")
		}
		ids := make([]string, 0, len(plan))
		for _, c := range plan {
			ids = append(ids, c.ID)
		}
		ok, err := e.Confirmer.Confirm(ids)
		if err != nil {
			return Result{}, fmt.Errorf("confirm deletion: %w", err)
		}
		if !ok {
			return Result{Status: StatusDeclined}, nil
		}
	} else {
		logger.Debug("Deletion confirmation skipped")
	}

	remove := e.Remove
	if remove == nil {
		remove = os.RemoveAll
	}

	logger.Info("Deleting unused versions...")
	result := Result{Status: StatusDeleted}
	var errs []error
	for _, c := range plan {
		logger.Debug(fmt.Sprintf("Deleting %s", c.ID), "dir", c.Dir)
		if err := remove(c.Dir); err != nil {
			logger.Error(fmt.Sprintf("Failed to delete %s", c.ID), "error", err)
			result.Failed = append(result.Failed, c.ID)
			errs = append(errs, fmt.Errorf("delete %s: %w", c.ID, err))
			continue
		}
		result.Deleted = append(result.Deleted, c.ID)
	}
	return result, errors.Join(errs...)
}
