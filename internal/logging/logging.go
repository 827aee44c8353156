// Package logging builds the slog loggers gami and its addons write to.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the handler and minimum level. Format is "json" or "text";
// Level is any slog level name, plus "warning".
type Config struct {
	Format string `yaml:"format" env:"GAMI_LOG_FORMAT"`
	Level  string `yaml:"level" env:"GAMI_LOG_LEVEL"`
}

// DefaultConfig logs human-readable text at info.
func DefaultConfig() Config {
	return Config{
		Format: "text",
		Level:  "info",
	}
}

var logger *slog.Logger

// Setup installs a stderr logger for cfg as both the package and the slog
// default.
func Setup(cfg Config) {
	logger = New(cfg, os.Stderr)
	slog.SetDefault(logger)
}

// New builds a logger for cfg that writes to w.
func New(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelOf(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// levelOf maps a configured level name to a slog level. Names slog does
// not know fall back to info.
func levelOf(name string) slog.Level {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Get is the logger installed by Setup. Before Setup it is slog's default.
func Get() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// ForAddon returns a logger tagged with the addon id.
func ForAddon(l *slog.Logger, addonID string) *slog.Logger {
	if l == nil {
		l = Get()
	}
	return l.With("addon", addonID)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
