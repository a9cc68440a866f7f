// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/shieldx/shieldx/internal/config"
)

// ParseLevel maps a configured level name to a slog level. Unknown names
// fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// New returns a logger writing to w. The returned LevelVar can be changed
// at runtime to adjust verbosity without rebuilding the handler.
func New(w io.Writer, conf config.LogConf) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(conf.Level))
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(conf.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), level
}

// Follow keeps level in sync with the log section of reloaded configs.
func Follow(loader *config.Loader, level *slog.LevelVar, log *slog.Logger) {
	loader.OnChange(func(c *config.Config) {
		next := ParseLevel(c.Log.Level)
		if next == level.Level() {
			return
		}
		level.Set(next)
		log.Info("log.level.changed", "level", next.String())
	})
}
