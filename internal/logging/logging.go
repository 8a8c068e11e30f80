package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel represents the severity of a log message
type LogLevel int32

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel atomic.Int32
	levelOnce    sync.Once
	logger       = log.New(os.Stderr, "", log.LstdFlags)
)

// ParseLevel converts a level name into a LogLevel. Unknown names fall back
// to LevelInfo and ok is false.
func ParseLevel(s string) (level LogLevel, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// levelFromEnv resolves the level from DEBUG and LOG_LEVEL.
func levelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}

	level, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
	return level
}

func initLevel() {
	levelOnce.Do(func() {
		currentLevel.Store(int32(levelFromEnv()))
	})
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return LogLevel(currentLevel.Load())
}

// SetLevel overrides the level read from the environment.
func SetLevel(level LogLevel) {
	initLevel()
	currentLevel.Store(int32(level))
}

// SetOutput redirects all log output. Tests use it to capture messages.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logf(level LogLevel, prefix, format string, args ...interface{}) {
	if GetLevel() <= level {
		logger.Printf(prefix+format, args...)
	}
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	logf(LevelDebug, "[DEBUG] ", format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	logf(LevelInfo, "[INFO] ", format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	logf(LevelWarn, "[WARN] ", format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	logf(LevelError, "[ERROR] ", format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	logger.Fatalf("[FATAL] "+format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
