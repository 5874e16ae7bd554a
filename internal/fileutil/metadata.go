// Package fileutil provides artifact naming and sidecar metadata utilities.
package fileutil

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// RecordingMetadata is the sidecar metadata written alongside each recording.
type RecordingMetadata struct {
	Version    string    `json:"version"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	Duration   string    `json:"duration"`
	DurationMs int64     `json:"duration_ms"`
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	Quality    string    `json:"quality"`
	FrameRate  int       `json:"frame_rate"`
	OutputFile string    `json:"output_file"`
}

// WriteMetadata writes a <recordingPath>.meta.json sidecar next to the
// recording file.
func WriteMetadata(recordingPath string, meta *RecordingMetadata) error {
	if recordingPath == "" {
		return fmt.Errorf("recording path must not be empty")
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return os.WriteFile(MetadataPath(recordingPath), data, 0644)
}

// MetadataPath returns the sidecar path for a recording file.
func MetadataPath(recordingPath string) string {
	ext := ".meta.json"
	if i := strings.LastIndex(recordingPath, "."); i > strings.LastIndex(recordingPath, "/") {
		return recordingPath[:i] + ext
	}
	return recordingPath + ext
}
