package detector

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfIsAlive(t *testing.T) {
	pid, start := Self()
	require.Equal(t, os.Getpid(), pid)
	assert.Greater(t, start, int64(0))

	alive, err := OwnerDetector{PID: pid, StartUnix: start}.Alive()
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestOwnerDetector_ExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	alive, err := OwnerDetector{PID: cmd.Process.Pid}.Alive()
	require.NoError(t, err)
	assert.False(t, alive, "reaped child must not be reported alive")
}

func TestOwnerDetector_ReusedPID(t *testing.T) {
	pid, start := Self()
	// a start time far in the past means the PID now belongs to someone else
	alive, err := OwnerDetector{PID: pid, StartUnix: start - 3600}.Alive()
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestOwnerDetector_InvalidPID(t *testing.T) {
	_, err := OwnerDetector{PID: 0}.Alive()
	assert.Error(t, err)
	assert.Equal(t, "owner:42@7", OwnerDetector{PID: 42, StartUnix: 7}.Describe())
}
