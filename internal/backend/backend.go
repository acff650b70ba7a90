// Package backend provides the interchangeable concurrency substrates a search
// session runs on. Each backend combines admission control (Scheduler), a
// channel kind, and an execution unit (Executor); all of them produce the
// same ordered output for the same input.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/ordgrep/internal/channel"
	grerrors "github.com/Aman-CERP/ordgrep/internal/errors"
	"github.com/Aman-CERP/ordgrep/internal/match"
	"github.com/Aman-CERP/ordgrep/internal/worker"
)

// Kind names a backend.
type Kind string

const (
	// KindSequential runs one worker at a time on the dispatcher goroutine.
	KindSequential Kind = "sequential"
	// KindThread starts a goroutine per file behind a counting semaphore.
	KindThread Kind = "thread"
	// KindPool hands files to a fixed-size worker group.
	KindPool Kind = "pool"
	// KindProcess scans each file in a separate worker process.
	KindProcess Kind = "process"
)

// DefaultPollInterval bounds the wait between admission attempts in the pool.
const DefaultPollInterval = 100 * time.Millisecond

// Kinds returns every backend kind.
func Kinds() []Kind {
	return []Kind{KindSequential, KindThread, KindPool, KindProcess}
}

// ParseKind converts a configuration value into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindSequential, KindThread, KindPool, KindProcess:
		return k, nil
	case "":
		return KindThread, nil
	default:
		return "", grerrors.New(grerrors.ErrCodeUnknownBackend, fmt.Sprintf("unknown backend %q", s), nil).
			WithSuggestion("use one of sequential, thread, pool, process")
	}
}

// Scheduler admits functions while fewer than its limit are running.
type Scheduler interface {
	// Go blocks until fn may start or ctx is done, in which case fn is not
	// run and ctx.Err() is returned.
	Go(ctx context.Context, fn func()) error
	// Wait blocks until every admitted function has returned.
	Wait()
}

// Executor runs one worker job. Execute must close job.Out on every path.
type Executor interface {
	Execute(ctx context.Context, job worker.Job) worker.Result
	// Close releases background units, waiting at most the grace period.
	Close() error
}

// KillCounter is implemented by executors whose Close may kill units that
// outlived their output.
type KillCounter interface {
	KilledUnits() int
}

// Backend is one concurrency substrate.
type Backend interface {
	Kind() Kind
	NewScheduler(limit int) Scheduler
	NewChannel(capacity int) *channel.Channel[match.Record]
	NewExecutor(logger *slog.Logger) Executor
	// Accepts reports whether the backend can run jobs with pattern p.
	Accepts(p match.Pattern) error
}

// Config selects and tunes a backend.
type Config struct {
	Kind Kind
	// PollInterval is used by the pool backend's admission loop.
	PollInterval time.Duration
	// Process configures the process backend.
	Process ProcessOptions
}

// New creates the backend named by cfg.Kind.
func New(cfg Config) (Backend, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = KindThread
	}
	switch kind {
	case KindSequential:
		return sequential{}, nil
	case KindThread:
		return thread{}, nil
	case KindPool:
		poll := cfg.PollInterval
		if poll <= 0 {
			poll = DefaultPollInterval
		}
		return pool{poll: poll}, nil
	case KindProcess:
		return newProcess(cfg.Process), nil
	default:
		_, err := ParseKind(string(kind))
		return nil, err
	}
}

// MustNew is like New but panics on error.
func MustNew(cfg Config) Backend {
	b, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return b
}

func newRecordChannel(capacity int) *channel.Channel[match.Record] {
	return channel.New[match.Record](capacity)
}

type sequential struct{}

func (sequential) Kind() Kind { return KindSequential }
func (sequential) NewScheduler(int) Scheduler { return inlineScheduler{} }
func (sequential) NewChannel(capacity int) *channel.Channel[match.Record] { return newRecordChannel(capacity) }
func (sequential) NewExecutor(*slog.Logger) Executor { return inProcess{} }
func (sequential) Accepts(match.Pattern) error { return nil }

type thread struct{}

func (thread) Kind() Kind { return KindThread }
func (thread) NewScheduler(limit int) Scheduler { return newSemaphoreScheduler(limit) }
func (thread) NewChannel(capacity int) *channel.Channel[match.Record] { return newRecordChannel(capacity) }
func (thread) NewExecutor(*slog.Logger) Executor { return inProcess{} }
func (thread) Accepts(match.Pattern) error { return nil }

type pool struct {
	poll time.Duration
}

func (pool) Kind() Kind { return KindPool }
func (p pool) NewScheduler(limit int) Scheduler { return newPoolScheduler(limit, p.poll) }
func (pool) NewChannel(capacity int) *channel.Channel[match.Record] { return newRecordChannel(capacity) }
func (pool) NewExecutor(*slog.Logger) Executor { return inProcess{} }
func (pool) Accepts(match.Pattern) error { return nil }

// inProcess runs the worker on the calling goroutine.
type inProcess struct{}

func (inProcess) Execute(ctx context.Context, job worker.Job) worker.Result {
	return worker.Run(ctx, job)
}

func (inProcess) Close() error { return nil }
