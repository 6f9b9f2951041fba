// Package logger provides the process-wide leveled logger. Components log
// through the *C / *CF variants so every line carries the subsystem that
// produced it, e.g.:
//
//	logger.InfoCF("debounce", "Buffer flushed", map[string]interface{}{
//	    "channel_key": key,
//	    "messages":    n,
//	})
package logger

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// Level controls which messages are emitted.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var currentLevel atomic.Int32

var std = log.New(os.Stderr, "", log.LstdFlags)

// SetLevel sets the minimum emitted level.
func SetLevel(l Level) { currentLevel.Store(int32(l)) }

// ParseLevel converts a config string into a Level. Unknown values fall
// back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func enabled(l Level) bool { return l >= Level(currentLevel.Load()) }

func emit(l Level, component, msg string, fields map[string]interface{}) {
	if !enabled(l) {
		return
	}
	var b strings.Builder
	switch l {
	case LevelDebug:
		b.WriteString("DEBUG")
	case LevelInfo:
		b.WriteString("INFO ")
	case LevelWarn:
		b.WriteString("WARN ")
	case LevelError:
		b.WriteString("ERROR")
	}
	if component != "" {
		b.WriteString(" [")
		b.WriteString(component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
		}
	}
	std.Println(b.String())
}

// Debug logs a debug message.
func Debug(msg string) { emit(LevelDebug, "", msg, nil) }

// Info logs an info message.
func Info(msg string) { emit(LevelInfo, "", msg, nil) }

// Warn logs a warning message.
func Warn(msg string) { emit(LevelWarn, "", msg, nil) }

// Error logs an error message.
func Error(msg string) { emit(LevelError, "", msg, nil) }

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { emit(LevelDebug, component, msg, nil) }

// InfoC logs an info message for a component.
func InfoC(component, msg string) { emit(LevelInfo, component, msg, nil) }

// WarnC logs a warning message for a component.
func WarnC(component, msg string) { emit(LevelWarn, component, msg, nil) }

// ErrorC logs an error message for a component.
func ErrorC(component, msg string) { emit(LevelError, component, msg, nil) }

// DebugCF logs a debug message for a component with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	emit(LevelDebug, component, msg, fields)
}

// InfoCF logs an info message for a component with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	emit(LevelInfo, component, msg, fields)
}

// WarnCF logs a warning message for a component with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	emit(LevelWarn, component, msg, fields)
}

// ErrorCF logs an error message for a component with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	emit(LevelError, component, msg, fields)
}
