package config

import (
	"os"
	"path/filepath"
)

// Paths resolves the orchestrator's on-disk layout relative to a base
// directory. Everything the orchestrator owns lives under Base:
//
//	config.json           normalized configuration document
//	device_id.txt         persistent device identity
//	status.json           NodeStatus document read by the GUI
//	engines/              generated per-engine properties files
//	logs/                 redirected engine stdout/stderr
//	symmetricds/          default engine installation root
type Paths struct {
	Base string
}

// DefaultBase returns the base directory, honoring the SYNCBRIDGE_HOME
// override.
func DefaultBase() string {
	if dir := os.Getenv("SYNCBRIDGE_HOME"); dir != "" {
		return dir
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "syncbridge")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "syncbridge")
	}
	return "."
}

// NewPaths returns a Paths rooted at base, or at DefaultBase when empty.
func NewPaths(base string) Paths {
	if base == "" {
		base = DefaultBase()
	}
	return Paths{Base: base}
}

// EnsureDirs creates the directories the orchestrator writes into.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.Base, p.EnginesDir(), p.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// ConfigFile is the configuration document path.
func (p Paths) ConfigFile() string { return filepath.Join(p.Base, "config.json") }

// StatusFile is the NodeStatus document path.
func (p Paths) StatusFile() string { return filepath.Join(p.Base, "status.json") }

// DeviceIDFile holds the persistent device UUID.
func (p Paths) DeviceIDFile() string { return filepath.Join(p.Base, "device_id.txt") }

// EnginesDir holds the generated per-engine properties files.
func (p Paths) EnginesDir() string { return filepath.Join(p.Base, "engines") }

// LogsDir holds the redirected engine process output.
func (p Paths) LogsDir() string { return filepath.Join(p.Base, "logs") }

// CommonPropertiesFile is the shared engine properties file.
func (p Paths) CommonPropertiesFile() string {
	return filepath.Join(p.Base, "symmetric-ds.properties")
}

// InstallSearchDir is where versioned engine installations are looked for
// when SYMMETRICDS_HOME is not set.
func (p Paths) InstallSearchDir() string { return filepath.Join(p.Base, "symmetricds") }

// PIDFile guards against a second orchestrator process.
func (p Paths) PIDFile() string { return filepath.Join(p.Base, "syncbridge.pid") }
