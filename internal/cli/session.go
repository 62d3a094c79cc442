package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"protonge/internal/config"
	"protonge/internal/hostproc"
	"protonge/internal/inventory"
	"protonge/internal/logx"
	"protonge/internal/paths"
	"protonge/internal/tools"
)

// session bundles what every command needs: settings, Steam paths and a logger.
type session struct {
	cfg    config.Config
	steam  paths.SteamPaths
	logger *slog.Logger
	closer io.Closer
	out    io.Writer
	errOut io.Writer
}

// Seams for tests.
var (
	newInstaller  = defaultInstaller
	newController = defaultController
)

func openSession(cmd *cobra.Command) (*session, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if steamInstallPath != "" {
		cfg.Steam.InstallPath = steamInstallPath
	}

	logOut := cmd.OutOrStdout()
	if outputJSON {
		logOut = cmd.ErrOrStderr()
	}
	logger, closer, err := logx.New(logx.Options{
		Level:  logx.LevelFromFlags(debugLogs, errorLogs, veryQuiet),
		Out:    logOut,
		LogDir: logDir,
	})
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		closer: closer,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}

	var problems []error
	for _, r := range cfg.Validate() {
		switch r.Level {
		case "error":
			problems = append(problems, errors.New(r.Message))
		default:
			s.warnf("warning: %s\n", r.Message)
		}
	}
	if len(problems) > 0 {
		closer.Close()
		return nil, fmt.Errorf("invalid settings in %s: %w", path, errors.Join(problems...))
	}

	s.steam, err = paths.Resolve(cfg.Steam.InstallPath)
	if err != nil {
		closer.Close()
		return nil, err
	}
	logger.Debug("Resolved Steam install", "root", s.steam.Root, "settings", path)
	return s, nil
}

func (s *session) Close() {
	_ = s.closer.Close()
}

func (s *session) scan() (inventory.Inventory, error) {
	return inventory.Scanner{
		Paths:  s.steam,
		Policy: inventory.SkipMissing,
		Logger: s.logger,
	}.Scan()
}

// warnf prints a yellow message to stderr unless output is silenced.
func (s *session) warnf(format string, args ...any) {
	if veryQuiet {
		return
	}
	_, _ = color.New(color.FgYellow).Fprintf(s.errOut, format, args...)
}

func defaultInstaller(s *session, logger *slog.Logger, progress tools.ProgressFunc) *tools.Installer {
	cacheDir, err := tools.CacheRoot()
	if err != nil {
		s.logger.Debug("Release cache disabled", "error", err)
		cacheDir = ""
	}
	return &tools.Installer{
		CompatTools: s.steam.CompatTools,
		Repo:        s.cfg.Releases.Repo,
		CacheDir:    cacheDir,
		Timeout:     s.cfg.Releases.DownloadTimeout,
		Logger:      logger,
		Progress:    progress,
	}
}

func defaultController(s *session) *hostproc.Controller {
	return &hostproc.Controller{Logger: s.logger}
}
