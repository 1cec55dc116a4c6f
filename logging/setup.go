package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	engineLogMaxSizeMB  = 50
	engineLogMaxBackups = 5
	engineLogMaxAgeDays = 30
)

// Setup builds the engine logger: a text handler on stderr, mirrored
// into a size-rotated engine log file when a path is given, and installs
// it as the process default.
func Setup(level string, engineLogPath string) *slog.Logger {
	var w io.Writer = os.Stderr
	if engineLogPath != "" {
		logWriter := &lumberjack.Logger{
			Filename:   engineLogPath,
			MaxSize:    engineLogMaxSizeMB,
			MaxBackups: engineLogMaxBackups,
			MaxAge:     engineLogMaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, logWriter)
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level, slog.LevelInfo),
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name onto a slog level, falling back on the
// default for empty or unknown names.
func ParseLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultLevel
	}
}
