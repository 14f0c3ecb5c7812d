package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/patiently/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (*command, string, error) {
	t.Helper()
	var out bytes.Buffer
	c := newCommand(&out)
	root := buildRoot(c)
	root.SetArgs(args)
	root.SetOut(&out)
	err := root.Execute()
	return c, out.String(), err
}

func queueDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".patiently")
	t.Setenv("QUEUE_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestSubmitMirrorsExitCode(t *testing.T) {
	dir := queueDir(t)
	c, _, err := execute(t, "sh", "-c", "exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, c.exitCode)

	s, err := queue.NewStore(dir)
	require.NoError(t, err)
	r, err := s.Lookup(0)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, r.Status)
}

func TestFlagsStopAtCommand(t *testing.T) {
	dir := queueDir(t)
	c, _, err := execute(t, "-j", "2", "sh", "-c", "exit 0", "-j")
	require.NoError(t, err)
	assert.Equal(t, 0, c.exitCode)

	s, err := queue.NewStore(dir)
	require.NoError(t, err)
	o, err := s.Owner(queue.Record{ID: 0, Status: queue.StatusFinished})
	require.NoError(t, err)
	assert.Equal(t, "sh -c exit 0 -j", o.Command)
}

func TestStartFailureIsAnError(t *testing.T) {
	queueDir(t)
	c, _, err := execute(t, "/nonexistent/patiently-cmd", "x")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "job 0: starting"), err.Error())
	assert.Equal(t, 1, c.exitCode)
}

func TestMonitorOnce(t *testing.T) {
	queueDir(t)
	_, _, err := execute(t, "true")
	require.NoError(t, err)

	c, out, err := execute(t, "--once", "--plain")
	require.NoError(t, err)
	assert.Equal(t, 0, c.exitCode)
	assert.Contains(t, out, "  finished: 1\n")
	assert.Equal(t, 5, strings.Count(out, "\n"))
}

func TestMonitorDrainedQueueExits(t *testing.T) {
	queueDir(t)
	_, out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "   waiting: 0\n")
}

func TestInvalidConfig(t *testing.T) {
	queueDir(t)
	_, _, err := execute(t, "-j", "0", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs must be >= 1")
}

func TestCommandEnvironment(t *testing.T) {
	dir := queueDir(t)
	_, _, err := execute(t, "true")
	require.NoError(t, err)

	script := `test "$PATIENTLY_JOB_ID" = 1 && test "$PATIENTLY_QUEUE_DIR" = "` + dir + `" && test "$GREETING" = "hi-1"`
	c, _, err := execute(t, "-e", "GREETING=hi-${PATIENTLY_JOB_ID}", "sh", "-c", script)
	require.NoError(t, err)
	assert.Equal(t, 0, c.exitCode)
}
