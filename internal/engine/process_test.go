package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchArgs(t *testing.T) {
	m := NewManager("/usr/bin/java", &Install{Home: "/opt/engine", Classpath: "a.jar:b.jar"},
		t.TempDir(), 31415, "America/Argentina/Buenos_Aires")

	args := m.launchArgs()
	assert.Equal(t, []string{
		"-Duser.timezone=America/Argentina/Buenos_Aires",
		"-Dserver.port=31415",
		"-Dserver.address=0.0.0.0",
		"-cp", "a.jar:b.jar",
		"org.jumpmind.symmetric.SymmetricWebServer",
	}, args)
}

func TestManagerInitialState(t *testing.T) {
	m := NewManager("java", &Install{}, t.TempDir(), 31415, "UTC")
	assert.Equal(t, StateNotStarted, m.State())
	assert.False(t, m.Alive())
}

func TestStopIdempotent(t *testing.T) {
	m := NewManager("java", &Install{}, t.TempDir(), 31415, "UTC")

	m.Stop()
	assert.Equal(t, StateStopped, m.State())

	// Second stop is a no-op, not a panic.
	m.Stop()
	assert.Equal(t, StateStopped, m.State())
}

func TestStartFailureLeavesStopped(t *testing.T) {
	m := NewManager("/nonexistent/path/to/java", &Install{Home: t.TempDir(), Classpath: "x.jar"},
		t.TempDir(), 31415, "UTC")

	_, err := m.Start()
	assert.ErrorIs(t, err, ErrSpawnFailed)
	assert.Equal(t, StateStopped, m.State())
	assert.False(t, m.Alive())
}

func TestRestartClosesPreviousLogFiles(t *testing.T) {
	dir := t.TempDir()
	m := NewManager("/nonexistent/path/to/java", &Install{Home: dir, Classpath: "x.jar"},
		dir, 31415, "UTC")

	out, err := os.Create(filepath.Join(dir, "web.out.log"))
	require.NoError(t, err)
	errFile, err := os.Create(filepath.Join(dir, "web.err.log"))
	require.NoError(t, err)

	old := &Handle{Role: "web", done: make(chan struct{}), outFile: out, errFile: errFile}
	close(old.done) // already exited
	m.handles["web"] = old
	m.state = StateRunning

	// The replacement spawn fails, but the dead handle's log files must be
	// released regardless.
	_, restartErr := m.Restart()
	assert.ErrorIs(t, restartErr, ErrSpawnFailed)

	old.mu.Lock()
	defer old.mu.Unlock()
	assert.Nil(t, old.outFile, "stdout log left open after restart")
	assert.Nil(t, old.errFile, "stderr log left open after restart")
}

func TestSpawnErrorMessageMentionsCause(t *testing.T) {
	err := fmt.Errorf("%w: %v", ErrSpawnFailed, "exec format error")
	assert.Contains(t, err.Error(), "engine process spawn failed")
}
