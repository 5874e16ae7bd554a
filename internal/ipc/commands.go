package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command represents user commands from the control CLI to the daemon
type Command string

const (
	CmdRecord     Command = "record"     // Start a recording session
	CmdPause      Command = "pause"      // Pause the active recording
	CmdResume     Command = "resume"     // Resume a paused recording
	CmdStop       Command = "stop"       // Stop and finalize the recording
	CmdCancel     Command = "cancel"     // Abort the recording, discard output
	CmdScreenshot Command = "screenshot" // Capture a still of the primary screen
	CmdQuit       Command = "quit"       // Shutdown daemon
)

// CacheDir returns the snapmark runtime directory, honoring SNAPMARK_CACHE_DIR
// so tests and parallel instances can isolate themselves.
func CacheDir() string {
	if dir := os.Getenv("SNAPMARK_CACHE_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.Getenv("HOME"), ".cache", "snapmark")
}

// CommandPath returns the command mailbox file the daemon watches.
func CommandPath() string {
	return filepath.Join(CacheDir(), "cmd.txt")
}

// WriteCommand writes a command to the mailbox file.
func WriteCommand(cmd Command) error {
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(CommandPath(), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears the mailbox file.
// Returns empty string if no command is pending or the file doesn't exist.
func ReadCommand() (Command, error) {
	cmdPath := CommandPath()

	data, err := os.ReadFile(cmdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // No command pending
		}
		return "", err
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(cmdPath, []byte(""), 0644); err != nil {
		return "", err
	}

	cmd := Command(strings.TrimSpace(string(data)))

	// Validate it's a known command
	switch cmd {
	case CmdRecord, CmdPause, CmdResume, CmdStop, CmdCancel, CmdScreenshot, CmdQuit:
		return cmd, nil
	case "":
		return "", nil // Empty file
	default:
		// Invalid command - ignore it
		return "", nil
	}
}
