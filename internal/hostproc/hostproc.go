// Package hostproc controls host processes: the Steam client and the
// operator's post-install script.
package hostproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"protonge/internal/logx"
)

// ErrStillRunning is returned when a terminated process outlives the polling window.
var ErrStillRunning = errors.New("process still running after termination")

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 10
	steamProcess        = "steam"
)

// Controller finds, signals and starts processes. Zero values select pidof,
// a two second poll interval and ten polls.
type Controller struct {
	Pidof        string
	SteamCommand string
	PollInterval time.Duration
	MaxPolls     int
	Logger       *slog.Logger

	// signal and sleep are replaced in tests.
	signal func(pid int, sig unix.Signal) error
	sleep  func(time.Duration)
}

// FindPID returns the first pid reported for name. found is false when no
// such process is running.
func (c *Controller) FindPID(ctx context.Context, name string) (pid int, found bool, err error) {
	cmd := exec.CommandContext(ctx, c.pidof(), name)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%s %s: %w", c.pidof(), name, err)
	}
	fields := strings.Fields(stdout.String())
	if len(fields) == 0 {
		return 0, false, nil
	}
	pid, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, false, fmt.Errorf("parse pid %q: %w", fields[0], err)
	}
	return pid, true, nil
}

// Terminate sends SIGTERM to pid.
func (c *Controller) Terminate(pid int) error {
	send := c.signal
	if send == nil {
		send = unix.Kill
	}
	if err := send(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("terminate %d: %w", pid, err)
	}
	return nil
}

// SpawnDetached starts name in a new session with its output discarded and
// does not wait for it.
func (c *Controller) SpawnDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	return cmd.Process.Release()
}

// RestartSteam terminates a running Steam client, waits for it to exit and
// starts it again. Nothing happens when Steam is not running.
func (c *Controller) RestartSteam(ctx context.Context) error {
	logger := c.logger()
	pid, found, err := c.FindPID(ctx, steamProcess)
	if err != nil {
		return err
	}
	if !found {
		logger.Debug("Steam does not appear to be running.")
		return nil
	}

	logger.Info("Restarting Steam")
	logger.Debug("Closing Steam", "pid", pid)
	if err := c.Terminate(pid); err != nil {
		return err
	}

	sleep := c.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	stopped := false
	for try := 0; try < c.maxPolls(); try++ {
		if _, found, err = c.FindPID(ctx, steamProcess); err != nil {
			return err
		}
		if !found {
			stopped = true
			break
		}
		logger.Debug("Steam is still running, waiting...")
		sleep(c.pollInterval())
	}
	if !stopped {
		return fmt.Errorf("closing Steam: %w", ErrStillRunning)
	}

	logger.Debug("Starting Steam")
	return c.SpawnDetached(c.steamCommand())
}

// RunScript runs script with the version as its only argument and waits for it.
func (c *Controller) RunScript(ctx context.Context, script, version string, stdout, stderr io.Writer) error {
	c.logger().Debug(fmt.Sprintf("Executing post update script %s", script))
	cmd := exec.CommandContext(ctx, script, version)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run script %s: %w", script, err)
	}
	return nil
}

func (c *Controller) pidof() string {
	if c.Pidof != "" {
		return c.Pidof
	}
	return "pidof"
}

func (c *Controller) steamCommand() string {
	if c.SteamCommand != "" {
		return c.SteamCommand
	}
	return steamProcess
}

func (c *Controller) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

func (c *Controller) maxPolls() int {
	if c.MaxPolls > 0 {
		return c.MaxPolls
	}
	return defaultMaxPolls
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logx.Discard()
}
