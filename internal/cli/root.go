package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	steamInstallPath string
	configPath       string
	debugLogs        bool
	errorLogs        bool
	veryQuiet        bool
	dryRun           bool
	outputJSON       bool
	noProgress       bool
	logDir           string
)

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "protonge",
		Short:         "Install, assign and prune GE-Proton versions for Steam",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&steamInstallPath, "steam-install-path", "", `Steam install root (default "~/.steam/steam")`)
	flags.StringVar(&configPath, "config", "", "Settings file (default $PROTONGE_CONFIG or ~/.config/protonge/config.yaml)")
	flags.BoolVar(&debugLogs, "debug", false, "Log at debug level")
	flags.BoolVar(&errorLogs, "error", false, "Log errors only")
	flags.BoolVar(&veryQuiet, "very-quiet", false, "Log nothing")
	flags.BoolVar(&dryRun, "dry-run", false, "Show what would change without writing Steam's config")
	flags.BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	flags.BoolVar(&noProgress, "no-progress", false, "Disable the interactive progress display")
	flags.StringVar(&logDir, "log-dir", "", "Also write logs to a timestamped file in this directory")

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newTestScriptCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}
