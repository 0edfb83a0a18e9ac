package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Logger provides leveled logging throughout the application. Lines are
// colourized on the console; an optional file copy is written without ANSI
// codes.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
	debug *log.Logger
	file  *log.Logger

	debugEnabled bool
}

// NewLogger creates a Logger writing to stdout/stderr with debug output off.
func NewLogger() *Logger {
	return newLogger(os.Stdout, os.Stderr, false)
}

// NewLoggerTo creates a Logger that writes every level to w.
func NewLoggerTo(w io.Writer, debug bool) *Logger {
	return newLogger(w, w, debug)
}

// NewLoggerFromEnv builds a Logger for the given level ("debug" enables debug
// lines) that also appends to logFile when it is non-empty.
func NewLoggerFromEnv(level, logFile string) (*Logger, error) {
	l := newLogger(os.Stdout, os.Stderr, strings.EqualFold(level, "debug"))
	if logFile == "" {
		return l, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %q: %w", logFile, err)
	}
	l.file = log.New(f, "", 0)
	return l, nil
}

func newLogger(out, errOut io.Writer, debug bool) *Logger {
	flags := 0
	return &Logger{
		info:         log.New(out, "", flags),
		warn:         log.New(out, "", flags),
		err:          log.New(errOut, "", flags),
		debug:        log.New(out, "", flags),
		debugEnabled: debug,
	}
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) write(dst *log.Logger, colour, label, format string, args ...any) {
	ts := l.timestamp()
	msg := fmt.Sprintf(format, args...)
	dst.Printf("[%s] \033[%sm%-5s\033[0m %s\n", ts, colour, label, msg)
	if l.file != nil {
		l.file.Printf("[%s] %-5s %s\n", ts, label, msg)
	}
}

func (l *Logger) Info(format string, args ...any) {
	l.write(l.info, "32", "INFO", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.write(l.warn, "33", "WARN", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.write(l.err, "31", "ERROR", format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	if !l.debugEnabled {
		return
	}
	l.write(l.debug, "36", "DEBUG", format, args...)
}
