// Package session runs one search: it dispatches a worker per source onto a
// backend and exposes the merged, submission-ordered results.
package session

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Aman-CERP/ordgrep/internal/backend"
	"github.com/Aman-CERP/ordgrep/internal/channel"
	grerrors "github.com/Aman-CERP/ordgrep/internal/errors"
	"github.com/Aman-CERP/ordgrep/internal/fanin"
	"github.com/Aman-CERP/ordgrep/internal/match"
	"github.com/Aman-CERP/ordgrep/internal/source"
	"github.com/Aman-CERP/ordgrep/internal/worker"
)

// Defaults for the admission and buffering bounds.
const (
	DefaultMaxFiles   = 16
	DefaultMaxMatches = 512
)

// Usage errors.
var (
	ErrNotStarted     = grerrors.ErrNotStarted
	ErrAlreadyStarted = grerrors.ErrAlreadyStarted
)

// Session is a single search over a sequence of sources.
//
// Start begins the search and returns the ordered results. Stop cancels it.
// Join waits for every worker to retire; call it after the results have been
// consumed or after Stop.
type Session struct {
	id         string
	backend    backend.Backend
	pattern    match.Pattern
	mode       match.Mode
	maxFiles   int
	maxMatches int
	observer   func(Event)
	logger     *slog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc

	registry   *channel.Registry[match.Record]
	tracker    *channel.Tracker
	scheduler  backend.Scheduler
	executor   backend.Executor
	dispatched chan struct{}
	iterated   atomic.Bool

	joinOnce sync.Once
	joinErr  error

	files      atomic.Int64
	records    atomic.Int64
	failed     atomic.Int64
	active     atomic.Int64
	peakActive atomic.Int64
}

// Option configures a Session.
type Option func(*Session)

// WithMaxFiles bounds the number of concurrently active workers.
func WithMaxFiles(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxFiles = n
		}
	}
}

// WithMaxMatches bounds the records buffered per source.
func WithMaxMatches(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxMatches = n
		}
	}
}

// WithObserver receives per-source events. It is called from worker
// goroutines and must be safe for concurrent use.
func WithObserver(fn func(Event)) Option {
	return func(s *Session) {
		s.observer = fn
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a session in the Created state.
func New(b backend.Backend, p match.Pattern, mode match.Mode, opts ...Option) *Session {
	s := &Session{
		id:         uuid.NewString(),
		backend:    b,
		pattern:    p,
		mode:       mode,
		maxFiles:   DefaultMaxFiles,
		maxMatches: DefaultMaxMatches,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("session_id", s.id))
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start dispatches a worker for each source and returns the results in
// submission order. The returned sequence may be ranged over once; stopping
// the range early stops the session.
func (s *Session) Start(ctx context.Context, sources iter.Seq[source.Handle]) (iter.Seq[match.Record], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return nil, ErrAlreadyStarted
	}
	if err := s.backend.Accepts(s.pattern); err != nil {
		return nil, err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.registry = channel.NewRegistry[match.Record](s.maxFiles)
	s.tracker = channel.NewTracker()
	s.scheduler = s.backend.NewScheduler(s.maxFiles)
	s.executor = s.backend.NewExecutor(s.logger)
	s.dispatched = make(chan struct{})
	s.state = StateStarted

	s.logger.Info("search_started",
		slog.String("backend", string(s.backend.Kind())),
		slog.String("mode", s.mode.String()),
		slog.Int("max_files", s.maxFiles),
		slog.Int("max_matches", s.maxMatches))

	go s.dispatch(ctx, sources)
	return s.results(ctx), nil
}

// Stop cancels the search. Blocked workers and the result sequence return
// promptly; results already yielded form a prefix of the full result.
// Stop is idempotent and does nothing before Start.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStarted {
		return
	}
	s.state = StateStopping
	s.cancel()
	s.logger.Debug("search_stopping")
}

// Join blocks until the dispatcher and every worker have retired.
// It fails with ErrNotStarted before Start; later calls return the first
// call's result.
func (s *Session) Join() error {
	s.mu.Lock()
	if s.state == StateCreated {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.mu.Unlock()

	s.joinOnce.Do(func() {
		<-s.dispatched
		s.scheduler.Wait()
		s.joinErr = s.executor.Close()

		s.mu.Lock()
		s.state = StateDone
		s.cancel()
		s.mu.Unlock()

		st := s.Stats()
		s.logger.Info("search_finished",
			slog.Int("files", st.Files),
			slog.Int("records", st.Records),
			slog.Int("failed", st.Failed),
			slog.Int("peak_active", st.PeakActive),
			slog.Int("peak_buffered", st.PeakBuffered),
			slog.Int("killed_units", st.KilledUnits))
	})
	return s.joinErr
}

// Stats returns counters for the search so far.
func (s *Session) Stats() Stats {
	st := Stats{
		ID:         s.id,
		Files:      int(s.files.Load()),
		Records:    int(s.records.Load()),
		Failed:     int(s.failed.Load()),
		PeakActive: int(s.peakActive.Load()),
	}
	if s.tracker != nil {
		st.PeakBuffered = s.tracker.Peak()
	}
	if kc, ok := s.executor.(backend.KillCounter); ok {
		st.KilledUnits = kc.KilledUnits()
	}
	return st
}

// dispatch registers each source and admits its worker. The registry is
// closed when the sources run out or the session is cancelled.
func (s *Session) dispatch(ctx context.Context, sources iter.Seq[source.Handle]) {
	defer close(s.dispatched)
	defer s.registry.Close()

	for h := range sources {
		if ctx.Err() != nil {
			return
		}

		ch := s.backend.NewChannel(s.maxMatches).WithTracker(s.tracker)
		// Registered before admission so the fan-in can drain it while an
		// inline scheduler runs the worker.
		if err := s.registry.Register(ctx, h.Name(), ch); err != nil {
			ch.Close()
			ch.MarkDrained()
			return
		}

		job := worker.Job{Handle: h, Pattern: s.pattern, Mode: s.mode, Out: ch}
		if err := s.scheduler.Go(ctx, func() { s.run(ctx, job) }); err != nil {
			ch.Close()
			return
		}
		s.files.Add(1)
	}
}

// run executes one job and keeps its admission slot until the fan-in has
// drained the job's channel, which bounds the undrained channels.
func (s *Session) run(ctx context.Context, job worker.Job) {
	name := job.Handle.Name()
	s.notify(Event{Kind: EventSourceStarted, Source: name})

	n := s.active.Add(1)
	for {
		peak := s.peakActive.Load()
		if n <= peak || s.peakActive.CompareAndSwap(peak, n) {
			break
		}
	}
	res := s.executor.Execute(ctx, job)
	s.active.Add(-1)

	s.report(name, res)

	select {
	case <-job.Out.Drained():
	case <-ctx.Done():
	}
}

func (s *Session) report(name string, res worker.Result) {
	switch {
	case res.OpenErr != nil:
		s.failed.Add(1)
		s.logger.Warn("source_open_failed", slog.String("source", name), slog.String("error", res.OpenErr.Error()))
		s.notify(Event{Kind: EventSourceFailed, Source: name, Err: res.OpenErr})
		return
	case res.ReadErr != nil:
		attrs := append([]any{slog.String("source", name)}, logAttrs(res.ReadErr)...)
		s.logger.Debug("source_truncated", attrs...)
		s.notify(Event{Kind: EventSourceTruncated, Source: name, Records: res.Records, Err: res.ReadErr})
	}
	s.notify(Event{Kind: EventSourceFinished, Source: name, Records: res.Records, Cancelled: res.Cancelled})
}

func (s *Session) notify(ev Event) {
	if s.observer != nil {
		s.observer(ev)
	}
}

func (s *Session) results(ctx context.Context) iter.Seq[match.Record] {
	return func(yield func(match.Record) bool) {
		if !s.iterated.CompareAndSwap(false, true) {
			return
		}
		for rec := range fanin.Iterate(ctx, s.registry) {
			s.records.Add(1)
			if !yield(rec) {
				s.Stop()
				return
			}
		}
	}
}

func logAttrs(err error) []any {
	attrs := grerrors.LogAttrs(err)
	out := make([]any, len(attrs))
	for i, a := range attrs {
		out[i] = a
	}
	return out
}
