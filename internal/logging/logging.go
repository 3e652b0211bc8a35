// Package logging configures the process-wide slog logger and captures log
// lines for display inside the terminal UI.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	level  = &slog.LevelVar{}
	mu     sync.RWMutex
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
)

// Init replaces the default logger with one writing text records to out.
func Init(out io.Writer, lvl string) *slog.Logger {
	SetLevel(lvl)

	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	}))
	slog.SetDefault(logger)
	return logger
}

// SetLevel updates the level of every logger handed out by this package.
// Unknown names leave the level unchanged.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info", "":
		level.Set(slog.LevelInfo)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}
}

// Level returns the current minimum level
func Level() slog.Level {
	return level.Level()
}

// For returns a logger tagged with the given subsystem
func For(subsystem string) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger.With("subsystem", subsystem)
}
