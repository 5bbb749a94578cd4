package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceIDCreatesAndPersists(t *testing.T) {
	Reset()
	path := filepath.Join(t.TempDir(), "device_id.txt")

	id := DeviceID(path)
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	require.NoError(t, err, "device id should be a UUID")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, id, string(data))
}

func TestDeviceIDStableAcrossCalls(t *testing.T) {
	Reset()
	path := filepath.Join(t.TempDir(), "device_id.txt")

	first := DeviceID(path)
	second := DeviceID(path)
	assert.Equal(t, first, second)
}

func TestDeviceIDReadsExistingFile(t *testing.T) {
	Reset()
	path := filepath.Join(t.TempDir(), "device_id.txt")
	require.NoError(t, os.WriteFile(path, []byte("existing-id\n"), 0644))

	assert.Equal(t, "existing-id", DeviceID(path))
}

func TestDeviceIDIgnoresEmptyFile(t *testing.T) {
	Reset()
	path := filepath.Join(t.TempDir(), "device_id.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))

	id := DeviceID(path)
	assert.NotEmpty(t, id)
	assert.NotEqual(t, "  ", id)
}

func TestSetDeviceID(t *testing.T) {
	Reset()
	path := filepath.Join(t.TempDir(), "device_id.txt")

	require.NoError(t, SetDeviceID(path, "forced-id"))
	assert.Equal(t, "forced-id", DeviceID(path))

	assert.Error(t, SetDeviceID(path, ""))
}
