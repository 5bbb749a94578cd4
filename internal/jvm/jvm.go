// Package jvm discovers a Java runtime able to host the replication engine.
// The engine ships as classfile 61 bytecode, so anything below Java 17 fails
// at class-load time with an error that says nothing useful; probing and
// rejecting old runtimes up front turns that into an actionable message.
package jvm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/syncbridge/syncbridge/internal/logger"
)

// MinMajorVersion is the lowest Java major version the engine supports.
const MinMajorVersion = 17

// ErrNotFound indicates no Java runtime could be located at all. The text
// names the requirement because it surfaces verbatim in the status document.
var ErrNotFound = errors.New("no Java 17+ runtime found; install JDK/JRE 17 or newer")

// TooOldError indicates runtimes were found but none meets MinMajorVersion.
type TooOldError struct {
	Version string // banner of the newest runtime seen
	Major   int
}

func (e *TooOldError) Error() string {
	return fmt.Sprintf("java %d found (%s), requires Java %d or newer", e.Major, e.Version, MinMajorVersion)
}

// Runtime is a located, eligible Java binary.
type Runtime struct {
	Path    string
	Version string
	Major   int
}

// probeFunc runs a candidate binary and returns its version banner.
// Replaceable for tests.
type probeFunc func(path string) (banner string, err error)

// Locator finds an eligible Java runtime among an ordered candidate list.
type Locator struct {
	// EmbeddedJRE is the directory of a bundled runtime, probed first.
	EmbeddedJRE string

	probe probeFunc
}

// NewLocator returns a Locator that probes real binaries. embeddedJRE may
// be empty.
func NewLocator(embeddedJRE string) *Locator {
	return &Locator{EmbeddedJRE: embeddedJRE, probe: runVersionBanner}
}

// Find probes candidates in order and returns the runtime with the highest
// major version >= MinMajorVersion. Returns ErrNotFound when nothing runs,
// or a TooOldError naming the newest version seen when only legacy runtimes
// exist.
func (l *Locator) Find() (*Runtime, error) {
	// Fast path for the embedded runtime: the release metadata file avoids
	// forking a JVM just to read its banner.
	if l.EmbeddedJRE != "" {
		if rt, ok := l.releaseFileRuntime(); ok {
			return rt, nil
		}
	}

	var best *Runtime
	var newestSeen *Runtime

	for _, candidate := range l.candidates() {
		banner, err := l.probe(candidate)
		if err != nil {
			continue
		}
		major := ParseMajor(banner)
		if major == 0 {
			continue
		}
		rt := &Runtime{Path: candidate, Version: strings.TrimSpace(banner), Major: major}
		if newestSeen == nil || major > newestSeen.Major {
			newestSeen = rt
		}
		if major >= MinMajorVersion && (best == nil || major > best.Major) {
			best = rt
		}
	}

	if best != nil {
		logger.Debug("selected Java runtime", "path", best.Path, "major", best.Major)
		return best, nil
	}
	if newestSeen != nil {
		return nil, &TooOldError{Version: newestSeen.Version, Major: newestSeen.Major}
	}
	return nil, ErrNotFound
}

// candidates returns the ordered probe list: embedded runtime, well-known
// install paths, then whatever PATH resolves.
func (l *Locator) candidates() []string {
	var list []string
	if l.EmbeddedJRE != "" {
		list = append(list, javaExe(l.EmbeddedJRE))
	}
	list = append(list, wellKnownPaths()...)
	list = append(list, "java")
	return list
}

// releaseFileRuntime reads the embedded JRE's release metadata file.
func (l *Locator) releaseFileRuntime() (*Runtime, bool) {
	exe := javaExe(l.EmbeddedJRE)
	if _, err := os.Stat(exe); err != nil {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(l.EmbeddedJRE, "release"))
	if err != nil {
		return nil, false
	}
	m := releaseVersionRe.FindSubmatch(data)
	if m == nil {
		return nil, false
	}
	version := string(m[1])
	major := ParseMajor(fmt.Sprintf("openjdk version %q", version))
	if major < MinMajorVersion {
		return nil, false
	}
	return &Runtime{
		Path:    exe,
		Version: fmt.Sprintf("openjdk version %q (embedded)", version),
		Major:   major,
	}, true
}

var releaseVersionRe = regexp.MustCompile(`JAVA_VERSION\s*=\s*"([^"]+)"`)

// javaExe returns the java binary path inside a runtime directory.
func javaExe(jreDir string) string {
	name := "java"
	if runtime.GOOS == "windows" {
		name = "java.exe"
	}
	return filepath.Join(jreDir, "bin", name)
}

// wellKnownPaths lists common vendor install locations per platform.
func wellKnownPaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Program Files\Java\jdk-21\bin\java.exe`,
			`C:\Program Files\Java\jdk-17\bin\java.exe`,
			`C:\Program Files\Amazon Corretto\jdk21\bin\java.exe`,
			`C:\Program Files\Amazon Corretto\jdk17\bin\java.exe`,
		}
	case "darwin":
		return []string{
			"/opt/homebrew/opt/openjdk@21/bin/java",
			"/opt/homebrew/opt/openjdk@17/bin/java",
			"/usr/local/opt/openjdk@21/bin/java",
			"/usr/local/opt/openjdk@17/bin/java",
		}
	default:
		return []string{
			"/usr/lib/jvm/java-21-openjdk-amd64/bin/java",
			"/usr/lib/jvm/java-17-openjdk-amd64/bin/java",
			"/usr/lib/jvm/default-java/bin/java",
		}
	}
}

// runVersionBanner executes `java -version` and captures the banner, which
// most distributions print on stderr.
func runVersionBanner(path string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").CombinedOutput()
	if err != nil {
		return "", err
	}
	banner := strings.TrimSpace(string(out))
	if banner == "" {
		return "", fmt.Errorf("empty version banner from %s", path)
	}
	return banner, nil
}

var (
	quotedVersionRe   = regexp.MustCompile(`version\s+"([0-9][0-9]?\.[0-9][^"]*|[0-9]{1,2})"`)
	unquotedVersionRe = regexp.MustCompile(`openjdk\s+version\s+(\d{1,2})`)
	leadingIntRe      = regexp.MustCompile(`^(\d{1,2})`)
)

// ParseMajor extracts the major Java version from a `java -version` banner.
// Handles the legacy scheme (`1.8.0_392` -> 8) and the modern one (`17`,
// `17.0.7`, `21`). Returns 0 when no version is recognizable.
func ParseMajor(banner string) int {
	text := strings.ToLower(banner)

	if m := quotedVersionRe.FindStringSubmatch(text); m != nil {
		v := m[1]
		if strings.HasPrefix(v, "1.") {
			parts := strings.Split(v, ".")
			if len(parts) >= 2 {
				if major, err := strconv.Atoi(parts[1]); err == nil {
					return major
				}
			}
			return 8
		}
		if lead := leadingIntRe.FindStringSubmatch(v); lead != nil {
			major, _ := strconv.Atoi(lead[1])
			return major
		}
	}

	// Some distributions print the banner without quotes.
	if m := unquotedVersionRe.FindStringSubmatch(text); m != nil {
		major, _ := strconv.Atoi(m[1])
		return major
	}

	return 0
}
