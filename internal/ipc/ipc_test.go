package ipc

import (
	"os"
	"testing"
	"time"
)

func TestCommandRoundTrip(t *testing.T) {
	t.Setenv("SNAPMARK_CACHE_DIR", t.TempDir())

	if err := WriteCommand(CmdRecord); err != nil {
		t.Fatalf("WriteCommand failed: %v", err)
	}

	cmd, err := ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand failed: %v", err)
	}
	if cmd != CmdRecord {
		t.Errorf("expected %q, got %q", CmdRecord, cmd)
	}

	// The mailbox is cleared after a read.
	cmd, err = ReadCommand()
	if err != nil {
		t.Fatalf("second ReadCommand failed: %v", err)
	}
	if cmd != "" {
		t.Errorf("expected empty command after read, got %q", cmd)
	}
}

func TestReadCommandNoFile(t *testing.T) {
	t.Setenv("SNAPMARK_CACHE_DIR", t.TempDir())

	cmd, err := ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand failed: %v", err)
	}
	if cmd != "" {
		t.Errorf("expected empty command, got %q", cmd)
	}
}

func TestReadCommandIgnoresUnknown(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SNAPMARK_CACHE_DIR", dir)

	if err := os.WriteFile(CommandPath(), []byte("format-disk"), 0644); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	cmd, err := ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand failed: %v", err)
	}
	if cmd != "" {
		t.Errorf("expected unknown command to be dropped, got %q", cmd)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	t.Setenv("SNAPMARK_CACHE_DIR", t.TempDir())

	want := &StatusSnapshot{
		State:           "recording",
		SessionID:       "01JF00000000000000000000",
		SourceID:        "screen-1",
		SourceName:      "Built-in Display",
		DurationSeconds: 12.5,
		EngineConnected: true,
		LastAction:      "Recording started",
		Timestamp:       time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
	}
	if err := WriteStatus(want); err != nil {
		t.Fatalf("WriteStatus failed: %v", err)
	}

	got, err := ReadStatus()
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if got.State != want.State || got.SourceName != want.SourceName ||
		got.DurationSeconds != want.DurationSeconds || !got.EngineConnected {
		t.Errorf("status mismatch: got %+v", got)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("timestamp mismatch: got %v", got.Timestamp)
	}
}

func TestWriteStatusLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SNAPMARK_CACHE_DIR", dir)

	for i := 0; i < 5; i++ {
		if err := WriteStatus(&StatusSnapshot{State: "idle", Timestamp: time.Now()}); err != nil {
			t.Fatalf("WriteStatus failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "status.json" {
			t.Errorf("unexpected file left behind: %s", e.Name())
		}
	}
}
