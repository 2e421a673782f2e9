package telemetry

import (
	"io"
	"log/slog"
	"strings"
)

type LogConfig struct {
	Level  string
	Format string
}

// SetupLogger installs the process-wide slog handler. Unknown levels fall back
// to info and unknown formats to text.
func SetupLogger(w io.Writer, c LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(c.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	l := slog.New(h)
	slog.SetDefault(l)
	return l
}
