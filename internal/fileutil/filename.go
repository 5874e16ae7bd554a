package fileutil

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// SanitizeForFilename sanitizes a string for safe use in filenames
func SanitizeForFilename(input string) string {
	if input == "" {
		return "Capture"
	}

	// Replace illegal filename characters with underscores
	// Illegal chars: / \ : * ? " < > |
	illegalChars := regexp.MustCompile(`[\/\\:*?"<>|]`)
	sanitized := illegalChars.ReplaceAllString(input, "_")

	// Replace multiple spaces/underscores with single hyphen
	whitespace := regexp.MustCompile(`[\s_]+`)
	sanitized = whitespace.ReplaceAllString(sanitized, "-")

	// Remove leading/trailing hyphens
	sanitized = strings.Trim(sanitized, "-")

	// Limit length to 50 characters for reasonable filenames
	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
		// Remove trailing hyphen if truncation created one
		sanitized = strings.TrimRight(sanitized, "-")
	}

	// Fallback if sanitization resulted in empty string
	if sanitized == "" {
		return "Capture"
	}

	return sanitized
}

// ArtifactBasename builds the timestamped basename for a saved artifact.
// Format: YYYY-MM-DD_HHMM_SourceName (no extension).
func ArtifactBasename(sourceName string, at time.Time) string {
	return fmt.Sprintf("%s_%s", at.Format("2006-01-02_1504"), SanitizeForFilename(sourceName))
}
