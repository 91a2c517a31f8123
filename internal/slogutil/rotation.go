package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

const dayLayout = "2006-01-02"

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(B|KB|MB|GB)?$`)

// RotateOptions configures a RotatingFile.
type RotateOptions struct {
	// MaxSize rotates the active file once it would exceed this many bytes.
	// Zero disables size rotation.
	MaxSize int64
	// MaxBackups is how many rotated files to keep (log.1, log.2, ...).
	MaxBackups int
	// Daily writes to "<path>.<YYYY-MM-DD>" and switches files at midnight.
	Daily bool
	// Compress gzips rotated backups and finished daily files.
	Compress bool
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// RotatingFile implements io.WriteCloser with size-based and daily rotation.
type RotatingFile struct {
	base string
	opts RotateOptions

	path string // active file
	day  string
	file *os.File
	size int64
	mu   sync.Mutex
}

// OpenRotatingFile opens a file with size rotation support.
// If maxSize is 0, rotation is disabled.
// If maxBackups is 0, old rotated files are deleted immediately.
func OpenRotatingFile(path string, maxSize int64, maxBackups int) (*RotatingFile, error) {
	return OpenRotatingFileWithOptions(path, RotateOptions{MaxSize: maxSize, MaxBackups: maxBackups})
}

// OpenRotatingFileWithOptions opens base with the given rotation policy.
// With Daily set, base is a prefix and the active file carries the date.
func OpenRotatingFileWithOptions(base string, opts RotateOptions) (*RotatingFile, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rf := &RotatingFile{base: base, opts: opts}
	rf.day = rf.today()
	rf.path = rf.activePath()

	if err := rf.openFile(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Path returns the file currently being written.
func (r *RotatingFile) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *RotatingFile) today() string {
	return r.opts.Now().Format(dayLayout)
}

func (r *RotatingFile) activePath() string {
	if !r.opts.Daily {
		return r.base
	}
	return r.base + "." + r.day
}

// openFile opens or creates the active file and gets its current size
func (r *RotatingFile) openFile() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}

	r.file = f
	r.size = info.Size()
	return nil
}

// Write implements io.Writer. It switches day files and rotates by size
// before writing.
func (r *RotatingFile) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, os.ErrClosed
	}

	if r.opts.Daily {
		if day := r.today(); day != r.day {
			// A failed rollover keeps writing to the old file.
			_ = r.rollDay(day)
		}
	}

	if r.opts.MaxSize > 0 && r.size > 0 && r.size+int64(len(p)) > r.opts.MaxSize {
		_ = r.rotate()
	}

	n, err = r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Close implements io.Closer
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// rollDay closes the current day's file and opens the one for day.
func (r *RotatingFile) rollDay(day string) error {
	prev := r.path
	if err := r.file.Close(); err != nil {
		return err
	}

	r.day = day
	r.path = r.activePath()
	if err := r.openFile(); err != nil {
		// Fall back to the previous file so writes are not lost.
		r.path = prev
		if reopenErr := r.openFile(); reopenErr != nil {
			return reopenErr
		}
		return err
	}

	if r.opts.Compress {
		_ = compressFile(prev, prev+".gz")
	}
	return nil
}

// rotate performs the rotation: log -> log.1 -> log.2 -> ...
func (r *RotatingFile) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return err
		}
	}

	for i := r.opts.MaxBackups; i >= 1; i-- {
		oldPath := r.backupPath(i)
		if i == r.opts.MaxBackups {
			_ = os.Remove(oldPath)
			continue
		}
		if _, err := os.Stat(oldPath); err == nil {
			_ = os.Rename(oldPath, r.backupPath(i+1))
		}
	}

	switch {
	case r.opts.MaxBackups <= 0:
		_ = os.Remove(r.path)
	case r.opts.Compress:
		if err := compressFile(r.path, r.backupPath(1)); err != nil {
			_ = os.Rename(r.path, fmt.Sprintf("%s.1", r.path))
		}
	default:
		_ = os.Rename(r.path, r.backupPath(1))
	}

	r.size = 0
	return r.openFile()
}

// backupPath returns the path for a backup file (e.g., log.1, log.2.gz)
func (r *RotatingFile) backupPath(n int) string {
	p := fmt.Sprintf("%s.%d", r.path, n)
	if r.opts.Compress {
		p += ".gz"
	}
	return p
}

// compressFile gzips src into dst and removes src on success.
func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(out)
	zw.Name = filepath.Base(src)
	if _, err := io.Copy(zw, in); err != nil {
		_ = zw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	_ = in.Close()
	return os.Remove(src)
}

// OpenLogFile opens a possibly gzip-compressed log file for reading.
func OpenLogFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ParseSize parses a size string like "10MB", "1GB", "500KB" into bytes.
// Supported suffixes: B, KB, MB, GB (case-insensitive)
// Returns 0 for empty or invalid strings.
func ParseSize(s string) int64 {
	if s == "" {
		return 0
	}

	s = strings.TrimSpace(strings.ToUpper(s))
	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0
	}

	var multiplier float64
	switch matches[2] {
	case "", "B":
		multiplier = 1
	case "KB":
		multiplier = 1024
	case "MB":
		multiplier = 1024 * 1024
	case "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0
	}

	return int64(value * multiplier)
}

// NewFileLoggerWithRotation creates a rotating file logger.
func NewFileLoggerWithRotation(base string, level slog.Leveler, opts RotateOptions) (*slog.Logger, *RotatingFile, error) {
	rf, err := OpenRotatingFileWithOptions(base, opts)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(rf, level), rf, nil
}
