// Package logger configures the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup builds a text logger writing to stdout or to the given file and
// installs it as the slog default. The returned func closes the log file and
// is a no-op for stdout.
func Setup(logLevel string, logFile string) (*slog.Logger, func() error, error) {
	var logWriter io.Writer = os.Stdout
	var handlerOptions = &slog.HandlerOptions{Level: getLogLevel(logLevel)}
	closeLog := func() error { return nil }

	if logFile != "" && logFile != "stdout" {
		file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is provided via config.
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		logWriter = file
		closeLog = file.Close
	} else {
		// The console already shows wall-clock time.
		handlerOptions.ReplaceAttr = func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		}
	}

	logger := slog.New(slog.NewTextHandler(logWriter, handlerOptions))
	slog.SetDefault(logger)
	return logger, closeLog, nil
}

func getLogLevel(logLevel string) slog.Level {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return level
}
