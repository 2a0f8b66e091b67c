package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/fanctl/internal/errors"
	"github.com/rs/zerolog"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// ParseLevel maps a configuration string to a LogLevel
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warning", "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}

	return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, s)
}

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Options configures the process-wide status logger.
type Options struct {
	Level LogLevel
	// File is the durable sink. Empty disables it.
	File string
	// Console mirrors every line; nil means stdout.
	Console   io.Writer
	IsService bool
	// FileOptional keeps logging to the console when File cannot be
	// opened instead of failing.
	FileOptional bool
}

type zeroLogger struct {
	zl zerolog.Logger
}

var std Logger = &zeroLogger{zl: zerolog.New(os.Stdout).With().Timestamp().Logger()}

// New returns a Logger that writes JSON lines to w. Used where the caller
// needs to inspect output, such as tests.
func New(w io.Writer, level LogLevel) Logger {
	return &zeroLogger{zl: zerolog.New(w).Level(zerolog.Level(level)).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything
func Nop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

// Init builds the default logger from opts. The returned closer releases
// the log file and must be called on exit.
func Init(opts Options) (io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	// journald stamps lines itself
	consoleOut := zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.RFC3339,
	}
	if opts.IsService {
		consoleOut.NoColor = true
		consoleOut.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	writers := []io.Writer{consoleOut}
	var closer io.Closer = nopCloser{}

	var fileErr error
	if opts.File != "" {
		f, err := openLogFile(opts.File)
		switch {
		case err == nil:
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        f,
				NoColor:    true,
				TimeFormat: time.RFC3339,
			})
			closer = f
		case opts.FileOptional:
			fileErr = err
		default:
			return nil, err
		}
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerolog.Level(opts.Level)).
		With().Timestamp().Logger()
	std = &zeroLogger{zl: zl}

	if fileErr != nil {
		std.Warn().Err(fileErr).Str("log_file", opts.File).Msg("Logging to console only")
	}

	return closer, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errors.New().Wrap(errors.ErrOpenLogFile, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrOpenLogFile, err)
	}
	return f, nil
}

// Default returns the process-wide logger configured by Init
func Default() Logger {
	return std
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

func (l *zeroLogger) Debug() *LogEvent {
	return &LogEvent{l.zl.Debug()}
}

func (l *zeroLogger) Info() *LogEvent {
	return &LogEvent{l.zl.Info()}
}

func (l *zeroLogger) Warn() *LogEvent {
	return &LogEvent{l.zl.Warn()}
}

func (l *zeroLogger) Error() *LogEvent {
	return &LogEvent{l.zl.Error()}
}

func (l *zeroLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{l.zl.Error().
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// Debug logs a debug message
func Debug() *LogEvent {
	return std.Debug()
}

// Info logs an info message
func Info() *LogEvent {
	return std.Info()
}

// Warn logs a warning message
func Warn() *LogEvent {
	return std.Warn()
}

// Error logs an error message
func Error() *LogEvent {
	return std.Error()
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return std.ErrorWithCode(err)
}
