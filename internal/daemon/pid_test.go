package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestPIDFile_IsRunning_NoFile(t *testing.T) {
	pidFile := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))

	running, pid, err := pidFile.IsRunning()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if running {
		t.Error("Expected not running when PID file doesn't exist")
	}
	if pid != 0 {
		t.Errorf("Expected pid=0 when file doesn't exist, got %d", pid)
	}
}

func TestPIDFile_IsRunning_InvalidPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "invalid.pid")
	if err := os.WriteFile(pidPath, []byte("not-a-number"), 0644); err != nil {
		t.Fatal(err)
	}

	running, _, err := NewPIDFile(pidPath).IsRunning()
	if err != nil {
		t.Errorf("Unexpected error for invalid PID: %v", err)
	}
	if running {
		t.Error("Expected not running for invalid PID file")
	}
}

func TestPIDFile_IsRunning_StalePID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "stale.pid")
	// A PID that almost certainly doesn't exist
	if err := os.WriteFile(pidPath, []byte("999999999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	running, pid, err := NewPIDFile(pidPath).IsRunning()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if running {
		t.Error("Expected not running for stale PID")
	}
	if pid != 999999999 {
		t.Errorf("Expected pid=999999999, got %d", pid)
	}
}

func TestPIDFile_AcquireAndRelease(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "run", "qsar.pid")
	pidFile := NewPIDFile(pidPath)

	if err := pidFile.Acquire(); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	data, err := os.ReadFile(pidPath)
	if err != nil {
		t.Fatalf("pid file not written: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file = %q, want %d", got, os.Getpid())
	}

	running, pid, err := pidFile.IsRunning()
	if err != nil || !running || pid != os.Getpid() {
		t.Errorf("IsRunning() = (%v, %d, %v), want (true, %d, nil)", running, pid, err, os.Getpid())
	}

	// Re-acquiring from the owning process is allowed
	if err := pidFile.Acquire(); err != nil {
		t.Errorf("second Acquire from same process failed: %v", err)
	}

	if err := pidFile.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("pid file should be removed after Release")
	}
	if err := pidFile.Release(); err != nil {
		t.Errorf("Release of missing file failed: %v", err)
	}
}

func TestPIDFile_AcquireReplacesStale(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "stale.pid")
	if err := os.WriteFile(pidPath, []byte("999999999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pidFile := NewPIDFile(pidPath)
	if err := pidFile.Acquire(); err != nil {
		t.Fatalf("Acquire over stale file failed: %v", err)
	}
	if pid, _ := pidFile.GetPID(); pid != os.Getpid() {
		t.Errorf("GetPID() = %d, want %d", pid, os.Getpid())
	}
}

func TestPIDFile_AcquireHeldByOther(t *testing.T) {
	ppid := os.Getppid()
	if !processExists(ppid) || ppid == os.Getpid() {
		t.Skip("parent process not visible")
	}

	pidPath := filepath.Join(t.TempDir(), "held.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(ppid)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pidFile := NewPIDFile(pidPath)
	err := pidFile.Acquire()
	var held *AlreadyRunningError
	if !errors.As(err, &held) {
		t.Fatalf("Acquire() error = %v, want *AlreadyRunningError", err)
	}
	if held.PID != ppid {
		t.Errorf("PID = %d, want %d", held.PID, ppid)
	}

	// Release must not remove a file another process owns
	if err := pidFile.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(pidPath); err != nil {
		t.Error("Release removed a pid file owned by another process")
	}
}

func TestPIDFile_StopNotRunning(t *testing.T) {
	pidFile := NewPIDFile(filepath.Join(t.TempDir(), "none.pid"))
	if _, err := pidFile.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop() error = %v, want ErrNotRunning", err)
	}
}

func TestProcessExists(t *testing.T) {
	if !processExists(os.Getpid()) {
		t.Error("current process should exist")
	}
	if processExists(0) || processExists(-1) {
		t.Error("non-positive PIDs should not exist")
	}
}
