package app

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger builds the process-wide JSON logger on stdout and installs it as
// the slog default. Source locations are attached only at debug level to keep
// production lines small; every line carries the service name for log
// aggregation across the ripple fleet.
func NewLogger(level string) *slog.Logger {
	lvl := parseLogLevel(level)

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})

	log := slog.New(h).With("service", "ripple")
	slog.SetDefault(log)
	return log
}

// parseLogLevel maps the RIPPLE_LOG_LEVEL value to a slog level. Unknown
// values fall back to info rather than failing startup.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
