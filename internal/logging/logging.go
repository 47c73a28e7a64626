// Package logging builds the daemon's slog logger: JSON or text, on stderr,
// optionally mirrored to a size-rotated file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	File       string `yaml:"file"`        // log file path, empty for none
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // rotated files to keep
	MaxAge     int    `yaml:"max_age"`     // days
	JSON       bool   `yaml:"json"`
}

// Logger is a configured slog logger and the file it writes to, if any.
type Logger struct {
	*slog.Logger
	file io.Closer
}

// New builds a logger writing to stderr and, when cfg.File is set, to a
// rotating log file.
func New(cfg Config) *Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg Config, console io.Writer) *Logger {
	l := &Logger{}

	writer := console
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
		l.file = rotator
		writer = io.MultiWriter(console, rotator)
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	l.Logger = slog.New(handler)

	return l
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
