package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Options configures a Logger
type Options struct {
	Level      Level
	JSONFormat bool
	// FilePath, when set, duplicates output into the file (created or appended).
	FilePath string
	// Service is attached to every entry as the "service" field.
	Service string
	// Output overrides stdout. Mostly useful in tests.
	Output io.Writer
}

// Logger provides structured logging on top of zerolog
type Logger struct {
	zl      zerolog.Logger
	level   Level
	logFile *os.File
}

// New creates a logger from options
func New(opts Options) (*Logger, error) {
	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}

	var logFile *os.File
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory for %s: %w", opts.FilePath, err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", opts.FilePath, err)
		}
		logFile = f
	}

	if !opts.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if logFile != nil {
		// The file always receives JSON so it stays machine readable.
		out = zerolog.MultiLevelWriter(out, logFile)
	}

	ctx := zerolog.New(out).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}

	return &Logger{
		zl:      ctx.Logger().Level(opts.Level.zerolog()),
		level:   opts.Level,
		logFile: logFile,
	}, nil
}

// NewLogger creates a stdout logger
func NewLogger(level Level, jsonFormat bool) *Logger {
	l, _ := New(Options{Level: level, JSONFormat: jsonFormat})
	return l
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), level: FATAL + 1}
}

func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	var ev *zerolog.Event
	switch level {
	case DEBUG:
		ev = l.zl.Debug()
	case INFO:
		ev = l.zl.Info()
	case WARN:
		ev = l.zl.Warn()
	case ERROR:
		ev = l.zl.Error()
	case FATAL:
		// Fatal exits after the write, like the rest of the codebase expects.
		ev = l.zl.Fatal()
	}
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(message)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, first(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, first(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, first(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, first(fields))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields ...map[string]interface{}) {
	l.log(FATAL, message, first(fields))
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		zl:    l.zl.With().Interface(key, value).Logger(),
		level: l.level,
	}
}

// WithComponent tags every entry with the component name
func (l *Logger) WithComponent(name string) *Logger {
	return l.WithField("component", name)
}

// Level returns the configured minimum level
func (l *Logger) Level() Level {
	return l.level
}

// Zerolog exposes the underlying logger for libraries that want one
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	if l.logFile != nil {
		l.Info("Logger closing")
		err := l.logFile.Close()
		l.logFile = nil
		return err
	}
	return nil
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}
