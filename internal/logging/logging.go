// Package logging builds the structured loggers used by the scribble
// commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level is a minimum log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
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
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a level name, case-insensitively. The empty string is
// LevelInfo.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Config configures a logger.
type Config struct {
	// Level is the minimum level to log.
	Level Level
	// JSON selects JSON output instead of text.
	JSON bool
	// Service, if not empty, is attached to every record as "service".
	Service string
	// Output is where records are written. Defaults to stderr.
	Output io.Writer
}

// New creates a logger from cfg.
func New(cfg Config) *slog.Logger {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slog()}
	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h)
	if cfg.Service != "" {
		l = l.With("service", cfg.Service)
	}
	return l
}

// Or returns l, or slog.Default() if l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Discard returns a logger which writes nothing.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Printf adapts a logger to printf-style interfaces at a fixed level, as
// expected by some storage engines.
type Printf struct {
	L *slog.Logger
}

func (p Printf) Errorf(format string, args ...any) {
	p.L.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p Printf) Warningf(format string, args ...any) {
	p.L.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p Printf) Infof(format string, args ...any) {
	p.L.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p Printf) Debugf(format string, args ...any) {
	p.L.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
