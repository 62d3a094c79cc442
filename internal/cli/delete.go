package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"protonge/internal/reconcile"
	"protonge/internal/retention"
)

var (
	deleteKeep int
	deleteYes  bool
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete GE-Proton versions no game uses",
		Args:  cobra.NoArgs,
		RunE:  runDelete,
	}
	cmd.Flags().IntVar(&deleteKeep, "keep", 0, "Keep this many of the most recent unused versions")
	cmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func runDelete(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	keep := s.cfg.Delete.Keep
	if cmd.Flags().Changed("keep") {
		keep = deleteKeep
	}
	if keep < 0 {
		return fmt.Errorf("--keep must not be negative, got %d", keep)
	}

	inv, err := s.scan()
	if err != nil {
		return err
	}
	sets := reconcile.FromInventory(inv, reconcile.RetentionPolicy{Keep: keep})
	if len(sets.Exempt) > 0 {
		s.logger.Debug("Keeping recent unused versions", "versions", sets.Exempt)
	}
	plan := retention.PlanDeletion(sets.Unused, sets.Exempt, inv)

	if dryRun {
		return printDeletionPlan(s, plan)
	}

	promptOut := s.out
	if outputJSON {
		promptOut = s.errOut
	}
	executor := retention.Executor{
		Confirmer: retention.LinePrompter{In: cmd.InOrStdin(), Out: promptOut},
		Logger:    s.logger,
	}
	result, execErr := executor.Execute(plan, !deleteYes)
	if result.Status == retention.StatusDeclined {
		s.logger.Info("Deletion cancelled.")
	}
	if outputJSON {
		if err := writeJSON(s.out, result); err != nil {
			return err
		}
	}
	return execErr
}

func printDeletionPlan(s *session, plan []retention.Candidate) error {
	if outputJSON {
		return writeJSON(s.out, plan)
	}
	if len(plan) == 0 {
		fmt.Fprintln(s.out, "No unused versions found.")
		return nil
	}
	fmt.Fprintln(s.out, "Dry run: would delete")
	for _, c := range plan {
		fmt.Fprintf(s.out, "  %s (%s)\n", c.ID, c.Dir)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
