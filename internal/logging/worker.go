package logging

import (
	"io"
	"log/slog"
)

// WorkerEnvLevel names the variable through which a parent passes its log
// level to worker units.
const WorkerEnvLevel = "ORDGREP_WORKER_LOG_LEVEL"

// SetupWorkerMode installs the logger for a worker unit.
//
// A unit's stdout carries frames, so logs go only to stderr, which the
// parent drains and keeps as failure detail. Output is text at level
// (warn when empty) with a component attribute.
func SetupWorkerMode(stderr io.Writer, level string) *slog.Logger {
	if level == "" {
		level = "warn"
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})).With(slog.String("component", "worker"))
	slog.SetDefault(logger)
	return logger
}
