// Package identity manages the persistent device UUID that distinguishes
// this installation as a replication node. The id is created lazily on
// first access, cached for the process lifetime, and never regenerated once
// written: the client engine's external id embeds it, and a changed id would
// register the same machine as a brand-new node.
package identity

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	mu     sync.Mutex
	cached string
)

// DeviceID returns the persistent device UUID stored at path, creating it
// on first use. If the file cannot be written the in-memory id is still
// returned so the run can proceed; the next process will mint a new one,
// which only costs a re-registration.
func DeviceID(path string) string {
	mu.Lock()
	defer mu.Unlock()

	if cached != "" {
		return cached
	}

	if data, err := os.ReadFile(path); err == nil {
		if val := strings.TrimSpace(string(data)); val != "" {
			cached = val
			return cached
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
		_ = os.WriteFile(path, []byte(id), 0644)
	}
	cached = id
	return cached
}

// SetDeviceID force-writes the device id. Test hook; production code never
// overwrites an existing identity.
func SetDeviceID(path, value string) error {
	mu.Lock()
	defer mu.Unlock()

	if value == "" {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return err
	}
	cached = value
	return nil
}

// Reset clears the process-wide cache. Test hook.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cached = ""
}
