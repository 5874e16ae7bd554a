// Package pidfile guards against running two snapmark daemons at once.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile is an acquired single-instance lock backed by a pid file.
type PIDFile struct {
	path string
	pid  int
}

// Acquire claims the pid file at path. It fails if another live process holds
// it, and silently replaces a stale file left by a crashed instance.
func Acquire(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create pid directory: %w", err)
	}

	if existing, ok := readPID(path); ok {
		if processAlive(existing) {
			return nil, fmt.Errorf("another instance is already running (PID %d)", existing)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove stale pid file: %w", err)
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write pid file: %w", err)
	}
	return &PIDFile{path: path, pid: pid}, nil
}

// Release deletes the pid file if this process still owns it. A file taken
// over by a newer instance is left alone.
func (p *PIDFile) Release() error {
	if p == nil {
		return nil
	}
	if pid, ok := readPID(p.path); ok && pid == p.pid {
		return os.Remove(p.path)
	}
	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

// processAlive probes a pid with signal 0.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return errors.Is(err, syscall.EPERM)
}

// DefaultPath returns the pid file location for the named daemon, honoring
// SNAPMARK_CACHE_DIR for test isolation.
func DefaultPath(name string) string {
	dir := os.Getenv("SNAPMARK_CACHE_DIR")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".cache", "snapmark")
	}
	return filepath.Join(dir, name+".pid")
}
