// Package logging configures ordgrep's slog output.
//
// By default only warnings and errors reach stderr, as text. With --debug,
// JSON logs are also written to a size-rotated file under ~/.ordgrep/logs/
// which `ordgrep logs` can tail and follow.
//
// Worker units log to stderr only, because their stdout carries the frame
// protocol; the parent keeps the tail of that stream as failure detail.
package logging
