package logging

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
)

// Logger provides leveled logging to stderr with redaction support
type Logger struct {
	debug   bool
	noColor bool

	mu  sync.Mutex
	out io.Writer
}

// New creates a new logger instance writing to stderr
func New(debug, noColor bool) *Logger {
	return &Logger{
		debug:   debug,
		noColor: noColor,
	}
}

// NewWithWriter creates a logger writing to w. Color is always disabled.
func NewWithWriter(w io.Writer, debug bool) *Logger {
	return &Logger{
		debug:   debug,
		noColor: true,
		out:     w,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, false)
}

// DebugEnabled reports whether debug output is on.
func (l *Logger) DebugEnabled() bool {
	return l.debug
}

func (l *Logger) writer() io.Writer {
	if l.out != nil {
		return l.out
	}
	return os.Stderr
}

func (l *Logger) emit(color, marker, format string, args []interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.noColor {
		fmt.Fprintf(l.writer(), "\033[%sm%s\033[0m %s\n", color, marker, msg)
	} else {
		fmt.Fprintf(l.writer(), "%s %s\n", marker, msg)
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("32", "✓", format, args)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit("33", "⚠", format, args)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("31", "✗", format, args)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit("36", "[DEBUG]", format, args)
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}

// RedactURL drops any userinfo (tokens, passwords) from a URL before it is
// logged. Unparseable input is fully redacted.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[REDACTED]"
	}
	u.User = nil
	return u.String()
}
