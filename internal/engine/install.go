package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IncompleteInstallError indicates the engine installation root exists but
// holds neither a launcher script nor any libraries. Launching with a
// fabricated empty classpath would only move the failure downstream into a
// cryptic JVM error, so discovery fails loudly instead.
type IncompleteInstallError struct {
	Home string
}

func (e *IncompleteInstallError) Error() string {
	return fmt.Sprintf("incomplete engine installation at %s: no bin/sym launcher and no jars under lib; "+
		"extract the official distribution and point SYMMETRICDS_HOME at it", e.Home)
}

// Install is a validated engine installation.
type Install struct {
	Home      string
	Launcher  string // launcher script path, empty if absent
	Classpath string // lib + webapp jars and classes
}

// EnginesDir is where the installed engine auto-discovers per-engine
// properties files.
func (i *Install) EnginesDir() string {
	return filepath.Join(i.Home, "engines")
}

// DiscoverInstall resolves the engine installation root and validates it.
// The root comes from the SYMMETRICDS_HOME override or, failing that, the
// lexicographically-last versioned subdirectory under searchDir (version
// directories sort naturally, so last wins).
func DiscoverInstall(searchDir string) (*Install, error) {
	home := os.Getenv("SYMMETRICDS_HOME")
	if home == "" {
		home = latestVersionedDir(searchDir)
	}

	launcher := findLauncher(home)
	classpath := buildClasspath(home)
	if launcher == "" && classpath == "" {
		return nil, &IncompleteInstallError{Home: home}
	}

	return &Install{Home: home, Launcher: launcher, Classpath: classpath}, nil
}

// latestVersionedDir picks the last symmetric-server-* directory under base,
// falling back to base itself when none exist.
func latestVersionedDir(base string) string {
	matches, err := filepath.Glob(filepath.Join(base, "symmetric-server-*"))
	if err != nil || len(matches) == 0 {
		return base
	}
	var dirs []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			dirs = append(dirs, m)
		}
	}
	if len(dirs) == 0 {
		return base
	}
	sort.Strings(dirs)
	return dirs[len(dirs)-1]
}

// findLauncher returns the launcher script path if the installation has one.
func findLauncher(home string) string {
	for _, name := range []string{"sym.bat", "sym.cmd", "sym"} {
		candidate := filepath.Join(home, "bin", name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// buildClasspath assembles the classpath from the installation's library
// directory plus the web application's jars and compiled classes. The
// hosting web server class lives in the webapp, so all three are required
// for a classpath launch.
func buildClasspath(home string) string {
	var parts []string

	parts = append(parts, jarsIn(filepath.Join(home, "lib"))...)
	parts = append(parts, jarsIn(filepath.Join(home, "web", "WEB-INF", "lib"))...)

	classes := filepath.Join(home, "web", "WEB-INF", "classes")
	if info, err := os.Stat(classes); err == nil && info.IsDir() {
		parts = append(parts, classes)
	}

	return strings.Join(parts, string(os.PathListSeparator))
}

// jarsIn lists the jar files in dir, sorted for a stable classpath.
func jarsIn(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jar"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}
