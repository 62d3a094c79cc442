package cli

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"protonge/internal/logx"
	"protonge/internal/tools"
	"protonge/internal/tui"
	"protonge/internal/version"
)

var (
	installLatest  bool
	installVersion string
	installScript  string
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download and install a GE-Proton release",
		Args:  cobra.NoArgs,
		RunE:  runInstall,
	}
	cmd.Flags().BoolVar(&installLatest, "latest", false, "Install the newest release")
	cmd.Flags().StringVar(&installVersion, "version", "", "Install a specific version (e.g. 9-20, 9.20, GE-Proton9-20)")
	cmd.Flags().StringVar(&installScript, "script", "", "Run this script with the version as argument after a new install")
	return cmd
}

func runInstall(cmd *cobra.Command, _ []string) error {
	requested, err := requestedVersion(installLatest, installVersion)
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := installPackage(cmd.Context(), s, requested, scriptPath(s, installScript), nil)
	if err != nil {
		return err
	}
	if outputJSON {
		if err := writeJSON(s.out, result); err != nil {
			return err
		}
	}
	return nil
}

// requestedVersion turns the --latest/--version pair into an installer request.
func requestedVersion(latest bool, explicit string) (string, error) {
	switch {
	case latest && explicit != "":
		return "", errors.New("use either --latest or --version, not both")
	case latest:
		return version.Latest, nil
	case explicit != "":
		return explicit, nil
	default:
		return "", errors.New("requires either --latest or --version to be set")
	}
}

func scriptPath(s *session, flagValue string) string {
	script := flagValue
	if script == "" {
		script = s.cfg.Update.Script
	}
	if script == "" {
		return ""
	}
	if expanded, err := homedir.Expand(script); err == nil {
		return expanded
	}
	return script
}

// installPackage installs requested and runs the post-install script after a
// fresh install. An already installed version is reported and reused. When
// the caller holds a scan, an explicit version found in it returns before
// any installer is built.
func installPackage(ctx context.Context, s *session, requested, script string, installed tools.Locator) (tools.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if installed != nil && requested != version.Latest {
		tag, err := version.Normalize(requested)
		if err != nil {
			return tools.Result{}, err
		}
		if dir, ok := installed.PackageDir(tag); ok {
			s.warnf("warning: %s is already installed\n", tag)
			return tools.Result{Version: tag, Dir: dir}, nil
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Releases.DownloadTimeout)
	defer cancel()

	var (
		result tools.Result
		err    error
	)
	if tui.DetectMode(s.out, noProgress || veryQuiet, outputJSON) == tui.ModeTUI {
		result, err = installWithProgress(ctx, s, requested, installed)
	} else {
		inst := newInstaller(s, s.logger, nil)
		inst.Installed = installed
		result, err = inst.Install(ctx, requested)
	}

	switch {
	case errors.Is(err, tools.ErrAlreadyInstalled):
		s.warnf("warning: %s is already installed\n", result.Version)
		return result, nil
	case err != nil:
		return result, err
	}

	if script != "" {
		if err := newController(s).RunScript(ctx, script, result.Version, s.out, s.errOut); err != nil {
			s.logger.Error(err.Error())
		}
	}
	return result, nil
}

func installWithProgress(ctx context.Context, s *session, requested string, installed tools.Locator) (tools.Result, error) {
	inst := newInstaller(s, logx.Discard(), nil)
	inst.Installed = installed

	tag := requested
	var err error
	if requested == version.Latest {
		tag, err = inst.ResolveLatest(ctx)
	} else {
		tag, err = version.Normalize(requested)
	}
	if err != nil {
		return tools.Result{}, err
	}

	model := tui.NewProgressModel("Installing GE-Proton", []tui.Column{
		{Header: "VERSION", Width: 18},
		{Header: "STATUS", Width: 12},
		{Header: "PROGRESS", Width: 30},
	})
	model.AddRow(tag, []string{tag, tui.StatusPending})

	var (
		result     tools.Result
		installErr error
	)
	runErr := tui.RunWithWork(s.out, model, func(send func(tea.Msg)) error {
		inst.Progress = tui.DownloadReporter(send)
		result, installErr = inst.Install(ctx, tag)
		switch {
		case errors.Is(installErr, tools.ErrAlreadyInstalled):
			send(tui.RowUpdateMsg{Key: tag, Fields: map[string]string{"STATUS": tui.StatusSkipped}})
			return nil
		case installErr != nil:
			send(tui.RowUpdateMsg{Key: tag, Fields: map[string]string{"STATUS": tui.StatusError}})
			return installErr
		}
		send(tui.TransferMsg{Key: tag, Done: 1, Total: 1})
		send(tui.RowUpdateMsg{Key: tag, Fields: map[string]string{"STATUS": tui.StatusInstalled}})
		return nil
	})
	if runErr != nil {
		return tools.Result{}, runErr
	}
	return result, installErr
}
