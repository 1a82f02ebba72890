package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the agent's JSON logger. slog keeps the standard
// library feel while emitting structured records any log shipper can
// ingest; source locations are added only at debug level to keep the
// steady-state location stream cheap.
func NewLogger(level string) *slog.Logger {
	lvl := levelFromString(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func levelFromString(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
