package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"protonge/internal/version"
)

var testScript string

func newTestScriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-script",
		Short: "Run the post-install script with a dummy version",
		Args:  cobra.NoArgs,
		RunE:  runTestScript,
	}
	cmd.Flags().StringVar(&testScript, "script", "", "Script to run (defaults to update.script from the settings file)")
	return cmd
}

func runTestScript(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	script := scriptPath(s, testScript)
	if script == "" {
		return errors.New("no script given: pass --script or set update.script")
	}
	s.logger.Info("Testing post-install script", "script", script, "version", version.TestVersion)
	return newController(s).RunScript(cmd.Context(), script, version.TestVersion, s.out, s.errOut)
}
