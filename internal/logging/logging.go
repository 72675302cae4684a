// Package logging holds the process-wide slog logger used across kanal.
// The default writes text to stderr at info level; Configure and InitFromEnv
// swap it atomically, so L() is safe from any goroutine.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// Options selects the handler for the global logger.
type Options struct {
	Level  string // debug|info|warn|error (default info)
	JSON   bool
	Writer io.Writer // default os.Stderr
}

var def atomic.Value

func init() {
	def.Store(build(Options{}))
}

// L returns the current global logger.
func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// Configure replaces the global logger.
func Configure(opts Options) {
	def.Store(build(opts))
}

// InitFromEnv configures the logger from KANAL_LOG_LEVEL and KANAL_LOG_JSON.
func InitFromEnv() {
	json, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("KANAL_LOG_JSON")))
	Configure(Options{Level: os.Getenv("KANAL_LOG_LEVEL"), JSON: json})
}

func build(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
