// Package daemon manages the PID file written by "qsar serve --pid-file" and
// lets "qsar stop" signal the running server.
package daemon

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrNotRunning is returned by Stop when no live server owns the PID file.
var ErrNotRunning = stderrors.New("qsar is not running")

// AlreadyRunningError reports the PID holding the file.
type AlreadyRunningError struct {
	PID  int
	Path string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("qsar is already running (PID: %d, pid file: %s)", e.PID, e.Path)
}

// PIDFile manages the server PID file
type PIDFile struct {
	path string
}

// NewPIDFile creates a new PID file manager
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the PID file location.
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire writes the current process ID. A file left behind by a dead
// process is replaced; one owned by a live process is an *AlreadyRunningError.
func (p *PIDFile) Acquire() error {
	running, pid, err := p.IsRunning()
	if err != nil {
		return err
	}
	if running && pid != os.Getpid() {
		return &AlreadyRunningError{PID: pid, Path: p.path}
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale pid file: %w", err)
	}

	// O_EXCL so two servers racing past IsRunning cannot both win
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			if _, other, _ := p.IsRunning(); other != 0 {
				return &AlreadyRunningError{PID: other, Path: p.path}
			}
		}
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("failed to write PID file: %w", werr)
	}
	return nil
}

// Release removes the PID file if this process still owns it.
func (p *PIDFile) Release() error {
	pid, err := p.GetPID()
	if err == nil && pid != 0 && pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning checks if the process named in the file is alive.
// Returns (running, pid, error)
func (p *PIDFile) IsRunning() (bool, int, error) {
	pid, err := p.GetPID()
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		var numErr *strconv.NumError
		if stderrors.As(err, &numErr) {
			// Garbage in the file counts as not running
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	if pid == 0 {
		return false, 0, nil
	}
	return processExists(pid), pid, nil
}

// GetPID returns the PID from the file, or 0 if the file is missing.
func (p *PIDFile) GetPID() (int, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// Stop sends SIGTERM to the process that owns the file.
func (p *PIDFile) Stop() (int, error) {
	running, pid, err := p.IsRunning()
	if err != nil {
		return 0, err
	}
	if !running {
		return pid, ErrNotRunning
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return pid, fmt.Errorf("signal PID %d: %w", pid, err)
	}
	return pid, nil
}

// processExists checks if a process with the given PID exists
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 doesn't send anything but checks if process exists
	return process.Signal(syscall.Signal(0)) == nil
}
