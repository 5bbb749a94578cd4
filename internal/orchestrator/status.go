package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// NodeStatus is the document published to status.json after every state
// change and health check. External tooling polls this file instead of
// talking to the orchestrator directly.
type NodeStatus struct {
	Running     bool   `json:"running"`
	Message     string `json:"message"`
	LocalPort   int    `json:"local_port"`
	RemotePort  int    `json:"remote_port"`
	JavaVersion string `json:"java_version,omitempty"`
	ExternalID  string `json:"external_id"`
	LastCheckTS int64  `json:"last_check_ts"`
}

// StatusWriter publishes NodeStatus documents atomically.
type StatusWriter struct {
	Path string

	// Fixed fields stamped onto every write.
	LocalPort   int
	RemotePort  int
	JavaVersion string
	ExternalID  string
}

// Write publishes a status document. The write goes through a temp file and
// rename so a reader never sees a half-written document.
func (w *StatusWriter) Write(running bool, message string) error {
	status := NodeStatus{
		Running:     running,
		Message:     message,
		LocalPort:   w.LocalPort,
		RemotePort:  w.RemotePort,
		JavaVersion: w.JavaVersion,
		ExternalID:  w.ExternalID,
		LastCheckTS: time.Now().Unix(),
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling status: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.Path), 0755); err != nil {
		return fmt.Errorf("error creating status directory: %w", err)
	}
	tmp := w.Path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("error writing status: %w", err)
	}
	if err := os.Rename(tmp, w.Path); err != nil {
		return fmt.Errorf("error publishing status: %w", err)
	}
	return nil
}

// ReadStatus loads the last published status document.
func ReadStatus(path string) (*NodeStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status NodeStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("error parsing status document: %w", err)
	}
	return &status, nil
}
