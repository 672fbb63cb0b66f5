// Package logger owns the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents log severity
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
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel parses a string level to Level
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
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

// Config for logger
type Config struct {
	Level   Level
	Output  io.Writer
	Service string
	Pretty  bool // console writer for local development
}

var (
	mu   sync.RWMutex
	root = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init configures the root logger. Safe to call more than once; the last call wins.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if cfg.Service == "" {
		cfg.Service = "mailsync-worker"
	}

	l := zerolog.New(out).
		Level(cfg.Level.zerolog()).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()

	mu.Lock()
	root = l
	mu.Unlock()
}

// L returns the root logger.
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}

// Nop returns a disabled logger, handy for tests and optional dependencies.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Printf-style helpers for call sites that do not need structured fields.

func Debug(format string, args ...any) {
	l := L()
	l.Debug().Msg(fmt.Sprintf(format, args...))
}

func Info(format string, args ...any) {
	l := L()
	l.Info().Msg(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...any) {
	l := L()
	l.Warn().Msg(fmt.Sprintf(format, args...))
}

func Error(format string, args ...any) {
	l := L()
	l.Error().Msg(fmt.Sprintf(format, args...))
}

// Fatal logs and exits the process.
func Fatal(format string, args ...any) {
	l := L()
	l.Error().Msg(fmt.Sprintf(format, args...))
	os.Exit(1)
}
