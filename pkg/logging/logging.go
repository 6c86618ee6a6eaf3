package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a config level name to a slog level. Unknown names are
// treated as info.
func ParseLevel(logLevelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevelStr)) {
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

// Setup installs the default slog logger. Output goes to logPath when it can
// be opened, otherwise to defaultWriter. The returned function closes the log
// file, if any.
func Setup(logLevelStr string, logPath string, defaultWriter io.Writer) func() {
	level := ParseLevel(logLevelStr)

	logWriter := defaultWriter
	closeFn := func() {}
	if logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			tempLogger := slog.New(slog.NewTextHandler(defaultWriter, nil))
			tempLogger.Error("Failed to open configured log file, falling back to default writer", "path", logPath, "error", err)
		} else {
			logWriter = logFile
			closeFn = func() { _ = logFile.Close() }
		}
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logWriter, opts)))
	return closeFn
}
