package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
// Progress lines are throttled; errors and the summary are always printed.
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	limiter *rate.Limiter
	last    ProgressEvent
	printed bool
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	limit := rate.Inf
	if cfg.PlainInterval > 0 {
		limit = rate.Every(cfg.PlainInterval)
	}
	return &PlainRenderer{
		out:     cfg.Output,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last = event
	r.printed = false
	if !r.limiter.Allow() {
		return
	}
	r.printLocked(event)
}

func (r *PlainRenderer) printLocked(event ProgressEvent) {
	// Format: [SEARCH] files searched, records - current file
	if event.CurrentFile != "" {
		_, _ = fmt.Fprintf(r.out, "[SEARCH] %d files, %d records - %s\n", event.Searched, event.Records, event.CurrentFile)
	} else {
		_, _ = fmt.Fprintf(r.out, "[SEARCH] %d files, %d records\n", event.Searched, event.Records)
	}
	r.printed = true
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The final progress line may have been throttled away.
	if !r.printed && (r.last != ProgressEvent{}) {
		r.printLocked(r.last)
	}

	_, _ = fmt.Fprintf(r.out, "Complete: %d files, %d records in %s",
		stats.Files, stats.Records, stats.Duration.Round(10*time.Millisecond))
	if stats.Backend != "" {
		_, _ = fmt.Fprintf(r.out, " (%s backend)", stats.Backend)
	}
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
