package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("QUEUE_DIR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PATIENTLY_JOBS", "")

	c, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultQueueDir, c.QueueDir)
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, 1, c.Jobs)
	assert.Equal(t, "/bin/sh", c.Shell)
	assert.Equal(t, time.Second, c.Interval)
	assert.Equal(t, 10*time.Second, c.LivenessInterval)
	assert.False(t, c.Logger().File.Enabled())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "patiently.toml")
	data := `
queue_dir = "/tmp/from-file"
jobs = 3
interval = "250ms"
liveness_interval = "0s"

[log]
dir = "/tmp/logs"
max_backups = 5
`
	require.NoError(t, os.WriteFile(file, []byte(data), 0o644))
	t.Setenv("QUEUE_DIR", "/tmp/from-env")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := Load(file, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env", c.QueueDir)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 3, c.Jobs)
	assert.Equal(t, 250*time.Millisecond, c.Interval)
	assert.Equal(t, time.Duration(0), c.LivenessInterval)
	lc := c.Logger()
	assert.Equal(t, "/tmp/logs", lc.File.Dir)
	assert.Equal(t, 5, lc.File.MaxBackups)
	assert.True(t, lc.File.Enabled())
}

func TestLoad_FlagsWin(t *testing.T) {
	t.Setenv("PATIENTLY_JOBS", "2")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.IntP("jobs", "j", 1, "")
	fs.String("log-level", "", "")
	require.NoError(t, fs.Parse([]string{"-j", "4"}))

	c, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Jobs)

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.IntP("jobs", "j", 1, "")
	require.NoError(t, fs.Parse(nil))
	c, err = Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Jobs, "unset flag must not shadow the environment")
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("PATIENTLY_JOBS", "0")
	t.Setenv("LOG_LEVEL", "loud")
	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs must be >= 1")
	assert.Contains(t, err.Error(), "unknown log level")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.Error(t, err)
}
