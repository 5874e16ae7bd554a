package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StatusSnapshot represents the complete daemon state at a point in time
type StatusSnapshot struct {
	State           string    `json:"state"`             // idle | recording | paused | processing
	SessionID       string    `json:"session_id"`        // Active session id, empty when idle
	SourceID        string    `json:"source_id"`         // Capture source being recorded
	SourceName      string    `json:"source_name"`       // Human-readable source name
	DurationSeconds float64   `json:"duration_seconds"` // Recorded time excluding pauses
	EngineConnected bool      `json:"engine_connected"` // Capture engine connection status
	LastAction      string    `json:"last_action"`       // Last action taken
	LastError       string    `json:"last_error"`        // Last error message
	LastArtifact    string    `json:"last_artifact"`     // Path of the most recent saved file
	Timestamp       time.Time `json:"timestamp"`         // Snapshot time
}

// StatusPath returns the status file the CLI reads and watches.
func StatusPath() string {
	return filepath.Join(CacheDir(), "status.json")
}

// WriteStatus persists a StatusSnapshot using an atomic write so readers
// never observe a half-written file.
func WriteStatus(status *StatusSnapshot) error {
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		return err
	}
	return atomicWriteJSON(StatusPath(), status)
}

// ReadStatus loads the most recently written StatusSnapshot.
func ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(StatusPath())
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	// Ensure cleanup on error
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	// Write JSON with indentation for readability
	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}

	// Sync to disk before rename
	if err := tmpFile.Sync(); err != nil {
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // Prevent defer cleanup

	return os.Rename(tmpPath, path)
}
