package ordgrep

import (
	"context"
	"io"
	"iter"

	"github.com/Aman-CERP/ordgrep/internal/backend"
	"github.com/Aman-CERP/ordgrep/internal/match"
	"github.com/Aman-CERP/ordgrep/internal/pattern"
	"github.com/Aman-CERP/ordgrep/internal/session"
	"github.com/Aman-CERP/ordgrep/internal/source"
)

// Core types.
type (
	Record      = match.Record
	Mode        = match.Mode
	Pattern     = match.Pattern
	PatternSpec = pattern.Spec

	Session      = session.Session
	SessionStats = session.Stats
	Event        = session.Event
	Option       = session.Option

	Backend        = backend.Backend
	BackendConfig  = backend.Config
	BackendKind    = backend.Kind
	ProcessOptions = backend.ProcessOptions

	Handle     = source.Handle
	FileHandle = source.FileHandle
)

// Matching modes.
const (
	ModeNormal            = match.ModeNormal
	ModeInvert            = match.ModeInvert
	ModeFilesWithMatch    = match.ModeFilesWithMatch
	ModeFilesWithoutMatch = match.ModeFilesWithoutMatch
)

// Backend kinds.
const (
	KindSequential = backend.KindSequential
	KindThread     = backend.KindThread
	KindPool       = backend.KindPool
	KindProcess    = backend.KindProcess
)

// Usage errors returned by Session methods.
var (
	ErrNotStarted     = session.ErrNotStarted
	ErrAlreadyStarted = session.ErrAlreadyStarted
)

// Session options.
var (
	WithMaxFiles   = session.WithMaxFiles
	WithMaxMatches = session.WithMaxMatches
	WithObserver   = session.WithObserver
	WithLogger     = session.WithLogger
)

// Search starts a session over sources and returns it with its ordered
// results. The caller should range over the results, or call Stop, and then
// Join the session.
func Search(ctx context.Context, sources iter.Seq[Handle], p Pattern, mode Mode, b Backend, opts ...Option) (*Session, iter.Seq[Record], error) {
	s := session.New(b, p, mode, opts...)
	records, err := s.Start(ctx, sources)
	if err != nil {
		return nil, nil, err
	}
	return s, records, nil
}

// Collect runs a search to completion and returns every record.
func Collect(ctx context.Context, sources iter.Seq[Handle], p Pattern, mode Mode, b Backend, opts ...Option) ([]Record, error) {
	s, records, err := Search(ctx, sources, p, mode, b, opts...)
	if err != nil {
		return nil, err
	}
	var out []Record
	for rec := range records {
		out = append(out, rec)
	}
	if err := s.Join(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

// Compile compiles a pattern that every backend accepts.
func Compile(spec PatternSpec) (Pattern, error) {
	p, err := pattern.Compile(spec)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewBackend creates the backend named by cfg.Kind.
func NewBackend(cfg BackendConfig) (Backend, error) {
	return backend.New(cfg)
}

// ParseMode converts a mode name such as "files-with-matches" into a Mode.
func ParseMode(s string) (Mode, error) {
	return match.ParseMode(s)
}

// Sources turns a list of handles into a source sequence.
func Sources(hs ...Handle) iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		for _, h := range hs {
			if !yield(h) {
				return
			}
		}
	}
}

// Lines returns an in-memory source.
func Lines(name string, lines ...string) Handle {
	return source.Lines(name, lines...)
}

// ServeUnit runs a process-backend worker unit over r and w.
func ServeUnit(ctx context.Context, r io.Reader, w io.Writer) error {
	return backend.ServeUnit(ctx, r, w)
}
