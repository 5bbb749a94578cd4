package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeInstall lays out a minimal engine installation under dir.
func makeInstall(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "web", "WEB-INF", "lib"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "web", "WEB-INF", "classes"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "sym"), []byte("#!/bin/sh\n"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "core.jar"), []byte("jar"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web", "WEB-INF", "lib", "webapp.jar"), []byte("jar"), 0644))
}

func TestDiscoverInstallPicksLatestVersion(t *testing.T) {
	t.Setenv("SYMMETRICDS_HOME", "")
	searchDir := t.TempDir()

	older := filepath.Join(searchDir, "symmetric-server-3.14.0")
	newer := filepath.Join(searchDir, "symmetric-server-3.15.12")
	makeInstall(t, older)
	makeInstall(t, newer)

	install, err := DiscoverInstall(searchDir)
	require.NoError(t, err)
	assert.Equal(t, newer, install.Home)
}

func TestDiscoverInstallHonorsHomeOverride(t *testing.T) {
	home := filepath.Join(t.TempDir(), "custom-install")
	makeInstall(t, home)
	t.Setenv("SYMMETRICDS_HOME", home)

	install, err := DiscoverInstall(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, home, install.Home)
}

func TestDiscoverInstallIncomplete(t *testing.T) {
	t.Setenv("SYMMETRICDS_HOME", "")
	searchDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(searchDir, "symmetric-server-3.15.0"), 0755))

	_, err := DiscoverInstall(searchDir)
	var incomplete *IncompleteInstallError
	require.ErrorAs(t, err, &incomplete)
	assert.Contains(t, incomplete.Home, "symmetric-server-3.15.0")
}

func TestClasspathOrderAndSeparator(t *testing.T) {
	home := t.TempDir()
	makeInstall(t, home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "lib", "a.jar"), []byte("jar"), 0644))

	cp := buildClasspath(home)
	parts := strings.Split(cp, string(os.PathListSeparator))
	require.Len(t, parts, 4)
	assert.Equal(t, filepath.Join(home, "lib", "a.jar"), parts[0])
	assert.Equal(t, filepath.Join(home, "lib", "core.jar"), parts[1])
	assert.Equal(t, filepath.Join(home, "web", "WEB-INF", "lib", "webapp.jar"), parts[2])
	assert.Equal(t, filepath.Join(home, "web", "WEB-INF", "classes"), parts[3])
}

func TestFindLauncher(t *testing.T) {
	home := t.TempDir()
	assert.Empty(t, findLauncher(home))

	makeInstall(t, home)
	assert.Equal(t, filepath.Join(home, "bin", "sym"), findLauncher(home))
}

func TestEnginesDir(t *testing.T) {
	i := &Install{Home: "/opt/engine"}
	assert.Equal(t, filepath.Join("/opt/engine", "engines"), i.EnginesDir())
}
