package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w := &StatusWriter{
		Path:        path,
		LocalPort:   31416,
		RemotePort:  31417,
		JavaVersion: `openjdk version "17.0.9"`,
		ExternalID:  "local-abc",
	}

	require.NoError(t, w.Write(true, "engines launched"))

	status, err := ReadStatus(path)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, "engines launched", status.Message)
	assert.Equal(t, 31416, status.LocalPort)
	assert.Equal(t, 31417, status.RemotePort)
	assert.Equal(t, "local-abc", status.ExternalID)
	assert.InDelta(t, time.Now().Unix(), status.LastCheckTS, 5)
}

func TestStatusWriteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "status.json")
	w := &StatusWriter{Path: path, ExternalID: "local-abc"}

	require.NoError(t, w.Write(false, "stop requested"))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestStatusWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	w := &StatusWriter{Path: filepath.Join(dir, "status.json"), ExternalID: "x"}
	require.NoError(t, w.Write(true, "OK"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "status.json", entries[0].Name())
}

func TestStatusOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w := &StatusWriter{Path: path, ExternalID: "local-abc"}

	require.NoError(t, w.Write(true, "OK"))
	require.NoError(t, w.Write(false, "restart failed: no java"))

	status, err := ReadStatus(path)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, "restart failed: no java", status.Message)
}

func TestReadStatusMissingFile(t *testing.T) {
	_, err := ReadStatus(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadStatusMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	_, err := ReadStatus(path)
	assert.Error(t, err)
}
