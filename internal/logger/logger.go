package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level is the logging level.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Options configures the global logger.
type Options struct {
	Enabled bool
	Level   string
	File    string
	Console bool
}

type sink struct {
	level   Level
	logger  *log.Logger
	closer  io.Closer
	enabled bool
}

var global = &sink{}

// Init initializes the global logger. Calling it again replaces the
// previous configuration and closes its log file.
func Init(opts Options) error {
	if !opts.Enabled {
		swap(&sink{})
		return nil
	}

	var writers []io.Writer
	var closer io.Closer
	if opts.File != "" {
		dir := filepath.Dir(opts.File)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	swap(&sink{
		level:   ParseLevel(opts.Level),
		logger:  log.New(io.MultiWriter(writers...), "", 0),
		closer:  closer,
		enabled: true,
	})
	return nil
}

// SetOutput routes all log lines at or above level to w.
func SetOutput(w io.Writer, level Level) {
	swap(&sink{level: level, logger: log.New(w, "", 0), enabled: true})
}

// Close releases the log file, if any.
func Close() error {
	if global.closer == nil {
		return nil
	}
	err := global.closer.Close()
	global.closer = nil
	return err
}

func swap(next *sink) {
	if global.closer != nil {
		global.closer.Close()
	}
	global = next
}

// ParseLevel maps a level name to a Level, defaulting to Info.
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Enabled reports whether messages at level are written.
func Enabled(level Level) bool {
	return global.enabled && level >= global.level
}

func write(level Level, format string, args ...interface{}) {
	if !Enabled(level) {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	global.logger.Printf("[%s] [%s] %s", ts, level, fmt.Sprintf(format, args...))
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) { write(Debug, format, args...) }

// Infof logs an info message.
func Infof(format string, args ...interface{}) { write(Info, format, args...) }

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) { write(Warn, format, args...) }

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) { write(Error, format, args...) }
