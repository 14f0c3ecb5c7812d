package process

import (
	"os/exec"
	"strings"

	"github.com/loykin/patiently/internal/logger"
)

// Spec describes the external command a job runs once admitted.
type Spec struct {
	Name    string        // used to name captured output files
	Args    []string      // positional command and its arguments
	Shell   string        // shell for single-string scripts, default /bin/sh
	WorkDir string        // optional working dir
	Env     []string      // optional full environment; nil inherits
	Log     logger.Config // output capture; passthrough when File is disabled
}

// Display renders the command for logs and record metadata.
func (s Spec) Display() string { return strings.Join(s.Args, " ") }

// BuildCommand constructs an *exec.Cmd for the spec.
// Several arguments are executed directly, verbatim. A single argument is a
// script for the shell; an explicit "sh -c ..." prefix is honored without
// wrapping it in another shell.
func (s Spec) BuildCommand() *exec.Cmd {
	if len(s.Args) > 1 {
		// #nosec G204
		return exec.Command(s.Args[0], s.Args[1:]...)
	}
	cmdStr := ""
	if len(s.Args) == 1 {
		cmdStr = strings.TrimSpace(s.Args[0])
	}
	if cmdStr == "" {
		return getTrueCommand()
	}
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		return getShellCommand(s.Shell, afterC)
	}
	return getShellCommand(s.Shell, cmdStr)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c ", "bash -c ", "/bin/bash -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// strip one pair of outer quotes so the script itself reaches the shell
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
