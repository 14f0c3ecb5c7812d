//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

const defaultShell = "/bin/sh"

// getShellCommand runs script through shell -c.
func getShellCommand(shell, script string) *exec.Cmd {
	if shell == "" {
		shell = defaultShell
	}
	// #nosec G204
	return exec.Command(shell, "-c", script)
}

// getTrueCommand returns a command that always succeeds
func getTrueCommand() *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/true")
}

// forwardedSignals are relayed to the running child. The child stays in our
// process group, so a terminal-generated signal usually reaches it directly
// as well; relaying covers kill(1) aimed at this process only.
var forwardedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

// exitStatus maps a finished command to the code this tool exits with:
// the command's own code, or 1 when it was terminated by a signal.
func exitStatus(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 1
	}
	if code := state.ExitCode(); code >= 0 {
		return code
	}
	return 1
}
