package slogutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"", 0},
		{"invalid", 0},
		{"100", 100},
		{"100B", 100},
		{"100b", 100},
		{"1KB", 1024},
		{"1kb", 1024},
		{"10KB", 10240},
		{"1MB", 1024 * 1024},
		{"10MB", 10 * 1024 * 1024},
		{"1GB", 1024 * 1024 * 1024},
		{"1.5MB", int64(1.5 * 1024 * 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseSize(tt.input)
			if result != tt.expected {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRotatingFile_Write(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	// Create rotating file with 100 byte max size and 2 backups
	rf, err := OpenRotatingFile(path, 100, 2)
	if err != nil {
		t.Fatalf("OpenRotatingFile failed: %v", err)
	}
	defer rf.Close()

	// Write some data
	data := []byte("hello world\n")
	for i := 0; i < 5; i++ {
		_, err := rf.Write(data)
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	// Verify file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("Log file should exist")
	}
}

func TestRotatingFile_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	// Create rotating file with 50 byte max size and 2 backups
	rf, err := OpenRotatingFile(path, 50, 2)
	if err != nil {
		t.Fatalf("OpenRotatingFile failed: %v", err)
	}

	// Write enough data to trigger rotation
	data := make([]byte, 30)
	for i := range data {
		data[i] = 'a'
	}
	data[len(data)-1] = '\n'

	// Write multiple times to trigger rotation
	for i := 0; i < 5; i++ {
		_, err := rf.Write(data)
		if err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	rf.Close()

	// Check that backup files exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("Main log file should exist")
	}
	if _, err := os.Stat(path + ".1"); os.IsNotExist(err) {
		t.Error("Backup .1 should exist")
	}
}

func TestRotatingFile_CompressedBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	rf, err := OpenRotatingFileWithOptions(path, RotateOptions{MaxSize: 50, MaxBackups: 2, Compress: true})
	if err != nil {
		t.Fatalf("OpenRotatingFileWithOptions failed: %v", err)
	}

	first := strings.Repeat("a", 29) + "\n"
	second := strings.Repeat("b", 29) + "\n"
	for _, line := range []string{first, second} {
		if _, err := rf.Write([]byte(line)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	_ = rf.Close()

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("uncompressed backup should not remain")
	}

	rc, err := OpenLogFile(path + ".1.gz")
	if err != nil {
		t.Fatalf("OpenLogFile failed: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read gzip backup: %v", err)
	}
	if string(got) != first {
		t.Errorf("backup content = %q, want %q", got, first)
	}

	active, _ := os.ReadFile(path)
	if string(active) != second {
		t.Errorf("active content = %q, want %q", active, second)
	}
}

func TestRotatingFile_DailyRollover(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "access-log")

	now := time.Date(2024, 5, 1, 23, 59, 0, 0, time.Local)
	rf, err := OpenRotatingFileWithOptions(base, RotateOptions{
		Daily: true,
		Now:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("OpenRotatingFileWithOptions failed: %v", err)
	}
	defer rf.Close()

	if rf.Path() != base+".2024-05-01" {
		t.Errorf("Path() = %q", rf.Path())
	}
	_, _ = rf.Write([]byte("day one\n"))

	now = now.Add(2 * time.Minute)
	_, _ = rf.Write([]byte("day two\n"))

	if rf.Path() != base+".2024-05-02" {
		t.Errorf("Path() after midnight = %q", rf.Path())
	}

	one, _ := os.ReadFile(base + ".2024-05-01")
	two, _ := os.ReadFile(base + ".2024-05-02")
	if string(one) != "day one\n" || string(two) != "day two\n" {
		t.Errorf("day files = %q / %q", one, two)
	}
}

func TestRotatingFile_DailyRolloverCompressesPreviousDay(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "incident-log")

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	rf, err := OpenRotatingFileWithOptions(base, RotateOptions{
		Daily:    true,
		Compress: true,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("OpenRotatingFileWithOptions failed: %v", err)
	}
	defer rf.Close()

	_, _ = rf.Write([]byte("old\n"))
	now = now.Add(24 * time.Hour)
	_, _ = rf.Write([]byte("new\n"))

	if _, err := os.Stat(base + ".2024-05-01.gz"); err != nil {
		t.Errorf("previous day should be compressed: %v", err)
	}
	if _, err := os.Stat(base + ".2024-05-01"); !os.IsNotExist(err) {
		t.Error("previous day plain file should be removed")
	}
}

func TestRotatingFile_WriteAfterClose(t *testing.T) {
	rf, err := OpenRotatingFile(filepath.Join(t.TempDir(), "x.log"), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	_ = rf.Close()
	if _, err := rf.Write([]byte("x")); err == nil {
		t.Error("Write after Close should fail")
	}
	if err := rf.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestNewFileLoggerWithRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, rf, err := NewFileLoggerWithRotation(path, slog.LevelInfo, RotateOptions{MaxSize: ParseSize("1MB"), MaxBackups: 3})
	if err != nil {
		t.Fatalf("NewFileLoggerWithRotation failed: %v", err)
	}
	logger.Info("written", "k", "v")
	_ = rf.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "[info] written | k=v") {
		t.Errorf("file content = %q", data)
	}
}
