package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireWritesOwnPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer pf.Release()

	data, err := os.ReadFile(pidPath)
	if err != nil {
		t.Fatalf("failed to read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("invalid pid in file: %q", data)
	}
	if pid != os.Getpid() {
		t.Errorf("pid mismatch: got %d, want %d", pid, os.Getpid())
	}
}

func TestAcquireRejectsLiveHolder(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer pf.Release()

	// The current process holds the lock, so a second claim must fail.
	if _, err := Acquire(pidPath); err == nil {
		t.Error("expected second Acquire to fail while holder is alive")
	}
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	// A pid far above any plausible live process.
	if err := os.WriteFile(pidPath, []byte("4194304\n"), 0644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire over stale file failed: %v", err)
	}
	defer pf.Release()
}

func TestReleaseRemovesFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := pf.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("pid file still exists after Release")
	}
}

func TestReleaseLeavesForeignFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	pf, err := Acquire(pidPath)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Another instance overwrote the file after we crashed and restarted.
	other := fmt.Sprintf("%d\n", os.Getpid()+1)
	if err := os.WriteFile(pidPath, []byte(other), 0644); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	if err := pf.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(pidPath); err != nil {
		t.Error("Release removed a pid file it no longer owned")
	}
}

func TestReleaseNilIsNoOp(t *testing.T) {
	var pf *PIDFile
	if err := pf.Release(); err != nil {
		t.Errorf("nil Release returned error: %v", err)
	}
}
