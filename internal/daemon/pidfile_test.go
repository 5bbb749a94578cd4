package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncbridge.pid")

	require.NoError(t, WritePIDFile(path))
	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestWritePIDFileRejectsLiveInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncbridge.pid")

	// Our own PID is definitionally a running process.
	require.NoError(t, WritePIDFile(path))
	err := WritePIDFile(path)
	assert.ErrorIs(t, err, ErrDaemonRunning)
}

func TestWritePIDFileReplacesStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncbridge.pid")
	// PID 1 exists on Unix but 99999999 should not anywhere.
	require.NoError(t, os.WriteFile(path, []byte("99999999\n"), 0644))

	require.NoError(t, WritePIDFile(path))
	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestReadPIDFileMissing(t *testing.T) {
	_, err := ReadPIDFile(filepath.Join(t.TempDir(), "missing.pid"))
	assert.ErrorIs(t, err, ErrNoPIDFile)
}

func TestReadPIDFileGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncbridge.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0644))

	_, err := ReadPIDFile(path)
	assert.Error(t, err)
}

func TestCheckPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncbridge.pid")

	pid, err := CheckPIDFile(path)
	require.NoError(t, err)
	assert.Zero(t, pid)

	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644))
	pid, err = CheckPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, os.WriteFile(path, []byte("99999999\n"), 0644))
	_, err = CheckPIDFile(path)
	assert.ErrorIs(t, err, ErrStalePIDFile)
}

func TestInstanceRunningCleansStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncbridge.pid")
	require.NoError(t, os.WriteFile(path, []byte("99999999\n"), 0644))

	running, pid, err := InstanceRunning(path)
	require.NoError(t, err)
	assert.False(t, running)
	assert.Zero(t, pid)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "stale PID file should be removed")
}

func TestRemovePIDFileIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncbridge.pid")
	require.NoError(t, WritePIDFile(path))

	require.NoError(t, RemovePIDFile(path))
	require.NoError(t, RemovePIDFile(path))
}
