package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
)

// Run executes the command exactly once and waits for it. It returns the
// exit code the tool should mirror. An error means the command could not be
// started (or its output could not be set up); the code is then meaningless.
func Run(spec Spec) (int, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	var closers []io.Closer
	if spec.Log.File.Enabled() {
		outW, errW, err := spec.Log.ProcessWriters(spec.Name)
		if err != nil {
			return 0, fmt.Errorf("preparing output capture: %w", err)
		}
		if outW != nil {
			cmd.Stdout = outW
			closers = append(closers, outW)
		}
		if errW != nil {
			cmd.Stderr = errW
			closers = append(closers, errW)
		}
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, forwardedSignals...)
	defer signal.Stop(sigCh)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %q: %w", spec.Display(), err)
	}
	slog.Debug("Command started", "pid", cmd.Process.Pid, "command", spec.Display())

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	for {
		select {
		case sig := <-sigCh:
			slog.Info("Forwarding signal", "signal", sig)
			_ = cmd.Process.Signal(sig)
		case err := <-done:
			var ee *exec.ExitError
			if err != nil && !errors.As(err, &ee) {
				// copying captured output failed; the exit status is still valid
				slog.Warn("Command I/O error", "error", err)
			}
			return exitStatus(cmd.ProcessState), nil
		}
	}
}
