package slogutil

import (
	"io"
	"log/slog"

	"qsar/internal/config"
	"qsar/internal/paths"
)

// LoggerFactory builds the access and incident loggers described by the
// logging config and owns the files behind them.
type LoggerFactory struct {
	config       *config.Config
	console      io.Writer
	consoleLevel slog.Level
	closers      []io.Closer
}

// NewLoggerFactory creates a new logger factory. console receives incident
// events at consoleLevel when Logging.Console is set; it may be nil.
func NewLoggerFactory(cfg *config.Config, console io.Writer, consoleLevel slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{
		config:       cfg,
		console:      console,
		consoleLevel: consoleLevel,
	}
}

// rotateOptions derives the file policy from config. Both logs roll daily.
func (f *LoggerFactory) rotateOptions() RotateOptions {
	return RotateOptions{
		MaxSize:    ParseSize(f.config.Logging.MaxSize),
		MaxBackups: f.config.Logging.MaxBackups,
		Daily:      true,
		Compress:   f.config.Logging.Compress,
	}
}

// AccessLogger writes one line per dispatched request to
// <logDir>/access-log.<YYYY-MM-DD>. Access lines are always recorded at info.
func (f *LoggerFactory) AccessLogger() (*slog.Logger, error) {
	dir, err := paths.LogDir(f.config)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDir(dir); err != nil {
		return nil, err
	}

	logger, rf, err := NewFileLoggerWithRotation(paths.AccessLogPrefix(dir), slog.LevelInfo, f.rotateOptions())
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, rf)
	return logger, nil
}

// IncidentLogger writes operational events to
// <logDir>/incident-log.<YYYY-MM-DD>, tee'd to the console when enabled.
func (f *LoggerFactory) IncidentLogger() (*slog.Logger, error) {
	dir, err := paths.LogDir(f.config)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDir(dir); err != nil {
		return nil, err
	}

	level := LevelFromString(f.config.Logging.Level)
	rf, err := OpenRotatingFileWithOptions(paths.IncidentLogPrefix(dir), f.rotateOptions())
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, rf)

	fileHandler := NewQsarHandler(rf, &slog.HandlerOptions{Level: level})
	if f.console == nil || !f.config.Logging.Console {
		return slog.New(fileHandler), nil
	}
	consoleHandler := NewQsarHandler(f.console, &slog.HandlerOptions{Level: f.consoleLevel})
	return NewTeeLogger(fileHandler, consoleHandler), nil
}

// ConsoleLogger returns a logger for CLI diagnostics that never touches disk.
func (f *LoggerFactory) ConsoleLogger() *slog.Logger {
	if f.console == nil {
		return NewDiscardLogger()
	}
	return NewLogger(f.console, f.consoleLevel)
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
