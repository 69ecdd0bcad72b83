package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Logger prints progress lines to the terminal and, when a log file is
// attached, mirrors every line there with a timestamp so failed batch runs
// can be inspected afterwards.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File
	debug bool
}

// New returns a logger writing progress to out. Debug lines are only emitted
// when debug is true.
func New(out io.Writer, debug bool) *Logger {
	if out == nil {
		out = io.Discard
	}
	return &Logger{out: out, debug: debug}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(io.Discard, false)
}

// AttachFile appends all subsequent lines to the file at path.
func (l *Logger) AttachFile(path string) error {
	if l == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open log file: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
	}
	l.file = f
	return nil
}

// Close releases the log file handle, if any.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// DebugEnabled reports whether Debugf output is emitted.
func (l *Logger) DebugEnabled() bool {
	return l != nil && l.debug
}

// Infof prints a progress line.
func (l *Logger) Infof(format string, args ...any) {
	l.write("INFO", "", format, args...)
}

// Warnf prints a recoverable problem.
func (l *Logger) Warnf(format string, args ...any) {
	l.write("WARN", "⚠️  ", format, args...)
}

// Debugf prints diagnostic detail when debug output is enabled.
func (l *Logger) Debugf(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.write("DEBUG", "[debug] ", format, args...)
}

func (l *Logger) write(level, prefix, format string, args ...any) {
	if l == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, prefix+line)
	if l.file != nil {
		fmt.Fprintf(l.file, "[%s] %s %s\n", time.Now().Format(time.RFC3339), level, strings.TrimSpace(line))
	}
}
