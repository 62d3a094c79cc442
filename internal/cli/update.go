package cli

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"protonge/internal/compat"
	"protonge/internal/inventory"
	"protonge/internal/tui"
	"protonge/internal/version"
)

var (
	updateGames        bool
	updateDefault      bool
	updateLatest       bool
	updateVersion      string
	updateExclude      []string
	updateExcludeRegex string
	updateRestart      bool
	updateScript       string
)

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Point games and/or the default compatibility tool at a GE-Proton version",
		Long: "Installs the requested version if needed, then rewrites Steam's compatibility tool\n" +
			"mapping. Games that follow Steam's default are left alone unless --default is given.",
		Args: cobra.NoArgs,
		RunE: runUpdate,
	}
	flags := cmd.Flags()
	flags.BoolVar(&updateGames, "games", false, "Update games that currently use a GE-Proton version")
	flags.BoolVar(&updateDefault, "default", false, "Update Steam's default compatibility tool")
	flags.BoolVar(&updateLatest, "latest", false, "Use the newest release")
	flags.StringVar(&updateVersion, "version", "", "Use a specific version")
	flags.StringSliceVar(&updateExclude, "exclude", nil, "App ids to leave alone")
	flags.StringVar(&updateExcludeRegex, "exclude-regex", "", "Leave games whose name matches this pattern alone")
	flags.BoolVar(&updateRestart, "restart-steam", false, "Restart Steam after a successful update")
	flags.StringVar(&updateScript, "script", "", "Run this script with the version as argument after a new install")
	return cmd
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	if !updateGames && !updateDefault {
		return errors.New("nothing to update: pass --games and/or --default")
	}
	requested, err := requestedVersion(updateLatest, updateVersion)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	inv, err := s.scan()
	if err != nil {
		return err
	}

	filter, err := updateFilter(s)
	if err != nil {
		return err
	}
	assignments, excluded := compat.BuildAssignments(inv.Usage, updateGames, updateDefault, filter)
	for _, a := range excluded {
		s.logger.Debug(fmt.Sprintf("Excluding %s due to exclude rule", a))
	}

	target, err := updateTarget(ctx, s, requested, inv)
	if err != nil {
		return err
	}

	mutator := compat.Mutator{
		ConfigFile: s.steam.ConfigFile,
		Libraries:  inv.Libraries,
		DryRun:     dryRun,
		Logger:     s.logger,
	}
	result, err := mutator.Apply(assignments, target)
	if err != nil {
		return err
	}

	if outputJSON {
		if err := writeJSON(s.out, result); err != nil {
			return err
		}
	} else {
		printChanges(s, result)
	}

	if (updateRestart || s.cfg.Steam.RestartAfterUpdate) && result.Written {
		restartSteam(ctx, s)
	}
	return nil
}

func updateFilter(s *session) (compat.Filter, error) {
	filter := compat.Filter{
		ExcludeIDs: append(append([]string{}, s.cfg.Update.Exclude...), updateExclude...),
	}
	if updateExcludeRegex != "" {
		re, err := regexp.Compile(updateExcludeRegex)
		if err != nil {
			return filter, fmt.Errorf("--exclude-regex: %w", err)
		}
		filter.ExcludeNames = re
		return filter, nil
	}
	re, err := s.cfg.ExcludePattern()
	if err != nil {
		return filter, err
	}
	filter.ExcludeNames = re
	return filter, nil
}

// updateTarget installs the requested version, or in dry-run only resolves it.
func updateTarget(ctx context.Context, s *session, requested string, inv inventory.Inventory) (string, error) {
	if dryRun {
		if requested == version.Latest {
			return newInstaller(s, s.logger, nil).ResolveLatest(ctx)
		}
		return version.Normalize(requested)
	}
	result, err := installPackage(ctx, s, requested, scriptPath(s, updateScript), inv)
	if err != nil {
		return "", err
	}
	return result.Version, nil
}

func printChanges(s *session, result compat.Result) {
	updated := color.New(color.FgGreen)
	skipped := color.New(color.FgYellow)
	for _, c := range result.Changes {
		switch c.Outcome {
		case compat.OutcomeUsesDefault:
			_, _ = skipped.Fprintf(s.out, "  %s uses the default, skipped\n", c.Assignment)
		case compat.OutcomeImplicitDefault:
			_, _ = skipped.Fprintf(s.out, "  %s has no mapping entry, markers set to %s\n", c.Assignment, result.Target)
		default:
			_, _ = updated.Fprintf(s.out, "  %s: %s -> %s\n", c.Assignment, tui.NonEmptyOrDash(c.Assignment.Source), result.Target)
		}
	}
	if result.DryRun {
		fmt.Fprintln(s.out, "Dry run: Steam's config was not written.")
		if result.Preview != "" {
			fmt.Fprint(s.out, result.Preview)
		}
	}
}

func restartSteam(ctx context.Context, s *session) {
	if tui.DetectMode(s.errOut, noProgress || veryQuiet, outputJSON) == tui.ModeTUI {
		sw := tui.NewStatusWriter(s.errOut, "Restarting Steam")
		defer sw.Stop()
	}
	if err := newController(s).RestartSteam(ctx); err != nil {
		s.logger.Error("Failed to restart Steam", "error", err)
	}
}
