package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/ordgrep/internal/channel"
	grerrors "github.com/Aman-CERP/ordgrep/internal/errors"
	"github.com/Aman-CERP/ordgrep/internal/match"
	"github.com/Aman-CERP/ordgrep/internal/pattern"
	"github.com/Aman-CERP/ordgrep/internal/source"
	"github.com/Aman-CERP/ordgrep/internal/worker"
)

// Defaults for ProcessOptions.
const (
	DefaultGracePeriod      = 2 * time.Second
	DefaultIdleTimeout      = 10 * time.Second
	DefaultMaxSpawnFailures = 3

	// WorkerCommand is the hidden subcommand that runs ServeUnit.
	WorkerCommand = "worker"

	stderrTailSize = 4096
)

// ProcessOptions configure the process backend.
type ProcessOptions struct {
	// Executable is the unit binary. Defaults to the running executable.
	Executable string
	// Args are passed to the unit. Defaults to the worker subcommand.
	Args []string
	// Env is appended to the parent's environment.
	Env []string
	// GracePeriod bounds how long Close waits for units before killing them.
	GracePeriod time.Duration
	// UnitTimeout bounds a unit's lifetime. Zero means no limit.
	UnitTimeout time.Duration
	// IdleTimeout bounds how long the parent waits for the unit's next
	// frame. Time spent blocked on a full channel or a slow source does not
	// count.
	IdleTimeout time.Duration
	// MaxSpawnFailures opens the spawn circuit; files then run in-process.
	MaxSpawnFailures int
	// Retry is the spawn retry policy. Nil uses errors.DefaultRetryConfig.
	Retry *grerrors.RetryConfig
}

// Transferable is implemented by patterns that can be sent to a unit.
type Transferable interface {
	Spec() pattern.Spec
}

type process struct {
	opts ProcessOptions
}

func newProcess(opts ProcessOptions) process {
	if opts.Executable == "" {
		if exe, err := os.Executable(); err == nil {
			opts.Executable = exe
		}
	}
	if opts.Args == nil {
		opts.Args = []string{WorkerCommand}
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.MaxSpawnFailures <= 0 {
		opts.MaxSpawnFailures = DefaultMaxSpawnFailures
	}
	return process{opts: opts}
}

func (process) Kind() Kind { return KindProcess }

func (process) NewScheduler(limit int) Scheduler { return newSemaphoreScheduler(limit) }

func (process) NewChannel(capacity int) *channel.Channel[match.Record] {
	return newRecordChannel(capacity)
}

func (p process) NewExecutor(logger *slog.Logger) Executor {
	return newProcessExecutor(p.opts, logger)
}

func (process) Accepts(p match.Pattern) error {
	if _, ok := p.(Transferable); !ok {
		return grerrors.New(grerrors.ErrCodePatternNotPortable,
			fmt.Sprintf("pattern %T cannot be sent to a worker process", p), nil).
			WithSuggestion("compile the pattern with the pattern package or use another backend")
	}
	return nil
}

// processExecutor scans each job in a child process. Records come back over
// the child's stdout and are relayed into the job's channel.
type processExecutor struct {
	opts    ProcessOptions
	logger  *slog.Logger
	retry   grerrors.RetryConfig
	breaker *grerrors.CircuitBreaker

	mu      sync.Mutex
	live    map[*unit]struct{}
	reapers sync.WaitGroup
	// lingered counts units Close had to kill.
	lingered atomic.Int64
}

func newProcessExecutor(opts ProcessOptions, logger *slog.Logger) *processExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	retry := grerrors.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	retry.RetryIf = grerrors.IsRetryable
	return &processExecutor{
		opts:    opts,
		logger:  logger,
		retry:   retry,
		breaker: grerrors.NewCircuitBreaker("unit-spawn", grerrors.WithMaxFailures(opts.MaxSpawnFailures)),
		live:    make(map[*unit]struct{}),
	}
}

// unit is one running child process.
type unit struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *tailBuffer
	// stderrDone is closed once the unit's stderr reaches EOF.
	stderrDone chan struct{}

	killOnce sync.Once
	killed   atomic.Bool
	// idled is set when the idle watchdog killed the unit.
	idled atomic.Bool
}

func (u *unit) kill() {
	u.killOnce.Do(func() {
		u.killed.Store(true)
		_ = u.cmd.Process.Kill()
	})
}

func (e *processExecutor) Execute(ctx context.Context, job worker.Job) (res worker.Result) {
	defer job.Out.Close()

	if ctx.Err() != nil {
		res.Cancelled = true
		return res
	}

	tp, ok := job.Pattern.(Transferable)
	if !ok {
		res.ReadErr = process{}.Accepts(job.Pattern)
		return res
	}

	r, err := job.Handle.Open()
	if err != nil {
		res.OpenErr = err
		return res
	}
	defer func() { _ = r.Close() }()

	u, err := grerrors.CircuitExecuteWithResult(e.breaker,
		func() (*unit, error) { return grerrors.RetryWithResult(ctx, e.retry, e.spawn) },
		func(err error) (*unit, error) { return nil, err })
	if u == nil {
		if ctx.Err() != nil {
			res.Cancelled = true
			return res
		}
		e.logger.Warn("unit_spawn_failed",
			slog.String("source", job.Handle.Name()),
			slog.String("fallback", "in-process"),
			slog.String("circuit", e.breaker.State().String()),
			slog.String("error", err.Error()))
		return worker.Drain(ctx, job.Handle.Name(), r, job.Pattern, job.Mode, job.Out.Put)
	}

	hdr := Header{Name: job.Handle.Name(), Mode: job.Mode.String(), Pattern: tp.Spec()}
	res = e.converse(ctx, u, hdr, r, job)
	e.reap(u, job.Handle.Name())
	return res
}

func (e *processExecutor) spawn() (*unit, error) {
	if e.opts.Executable == "" {
		return nil, grerrors.New(grerrors.ErrCodeUnitSpawn, "no worker executable", nil)
	}

	cmd := exec.Command(e.opts.Executable, e.opts.Args...)
	cmd.Env = append(os.Environ(), e.opts.Env...)
	cmd.WaitDelay = time.Second
	u := &unit{cmd: cmd, stderr: &tailBuffer{max: stderrTailSize}, stderrDone: make(chan struct{})}

	var err error
	if u.stdin, err = cmd.StdinPipe(); err != nil {
		return nil, grerrors.UnitError(grerrors.ErrCodeUnitSpawn, "", err)
	}
	if u.stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, grerrors.UnitError(grerrors.ErrCodeUnitSpawn, "", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, grerrors.UnitError(grerrors.ErrCodeUnitSpawn, "", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, grerrors.UnitError(grerrors.ErrCodeUnitSpawn, "", err)
	}
	go func() {
		defer close(u.stderrDone)
		_, _ = io.Copy(u.stderr, stderr)
	}()

	e.mu.Lock()
	e.live[u] = struct{}{}
	e.mu.Unlock()
	return u, nil
}

// converse runs the unit's side of the exchange on the calling goroutine:
// it answers each next frame with one source line and relays each record
// into job.Out. A unit that sends nothing for IdleTimeout is killed.
func (e *processExecutor) converse(ctx context.Context, u *unit, hdr Header, r source.Reader, job worker.Job) (res worker.Result) {
	defer func() { _ = u.stdin.Close() }()

	unitCtx := ctx
	if e.opts.UnitTimeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(ctx, e.opts.UnitTimeout)
		defer cancel()
	}
	stop := context.AfterFunc(unitCtx, u.kill)
	defer stop()

	idle := time.AfterFunc(e.opts.IdleTimeout, func() {
		u.idled.Store(true)
		u.kill()
	})
	defer idle.Stop()
	idle.Stop()

	// A failed write means the unit has exited; reading its stdout tells how.
	name := hdr.Name
	fw := newFrameWriter(u.stdin)
	_ = fw.send(Frame{Type: FrameHeader, Header: &hdr})

	fr := newFrameReader(u.stdout)
	inputDone := false
	for {
		idle.Reset(e.opts.IdleTimeout)
		f, err := fr.read()
		idle.Stop()
		if err != nil {
			return e.unitFailed(ctx, unitCtx, u, name, res, err)
		}

		switch f.Type {
		case FrameNext:
			if inputDone {
				return e.unitFailed(ctx, unitCtx, u, name, res, errors.New("line requested after eof"))
			}
			reply := Frame{Type: FrameLine}
			line, rerr := r.ReadLine()
			if rerr != nil {
				inputDone = true
				reply = Frame{Type: FrameEOF}
				if !errors.Is(rerr, io.EOF) {
					reply.Error = rerr.Error()
					e.logger.Debug("source_truncated", slog.String("source", name), slog.String("error", rerr.Error()))
				}
			} else {
				reply.Line = line
			}
			_ = fw.send(reply)
		case FrameRecord:
			if err := job.Out.Put(ctx, *f.Record); err != nil {
				u.kill()
				res.Cancelled = true
				return res
			}
			res.Records++
		case FrameDone:
			if f.Error != "" {
				res.ReadErr = errors.New(f.Error)
			}
			return res
		case FrameError:
			return e.unitFailed(ctx, unitCtx, u, name, res, errors.New(f.Error))
		default:
			return e.unitFailed(ctx, unitCtx, u, name, res, fmt.Errorf("unexpected %s frame", f.Type))
		}
	}
}

// unitFailed classifies why a unit stopped early. The unit is killed; the
// records already relayed stand.
func (e *processExecutor) unitFailed(ctx, unitCtx context.Context, u *unit, name string, res worker.Result, cause error) worker.Result {
	u.kill()
	if ctx.Err() != nil {
		res.Cancelled = true
		return res
	}
	select {
	case <-u.stderrDone:
	case <-time.After(u.cmd.WaitDelay):
	}

	code := grerrors.ErrCodeUnitProtocol
	switch {
	case u.idled.Load():
		code = grerrors.ErrCodeUnitTimeout
		cause = fmt.Errorf("unit sent nothing for %s", e.opts.IdleTimeout)
	case unitCtx.Err() != nil:
		code = grerrors.ErrCodeUnitTimeout
		cause = fmt.Errorf("unit exceeded %s", e.opts.UnitTimeout)
	case errors.Is(cause, io.EOF):
		code = grerrors.ErrCodeUnitCrashed
		cause = errors.New("unit exited without finishing")
	}

	ge := grerrors.UnitError(code, name, cause)
	if tail := u.stderr.String(); tail != "" {
		ge = ge.WithDetail("stderr", tail)
	}
	res.ReadErr = ge
	attrs := append([]any{slog.String("source", name)}, attrsOf(ge)...)
	e.logger.Warn("unit_failed", attrs...)
	return res
}

// reap waits for the unit to exit in the background, outside the caller's
// admission slot.
func (e *processExecutor) reap(u *unit, name string) {
	e.reapers.Add(1)
	go func() {
		defer e.reapers.Done()
		<-u.stderrDone
		err := u.cmd.Wait()

		e.mu.Lock()
		delete(e.live, u)
		e.mu.Unlock()

		if err != nil && !u.killed.Load() {
			e.logger.Debug("unit_exit", slog.String("source", name), slog.String("error", err.Error()))
		}
	}()
}

// Close waits for every unit to exit. Units still running after the grace
// period are killed; their records were already delivered, so this is not
// an error.
func (e *processExecutor) Close() error {
	done := make(chan struct{})
	go func() {
		e.reapers.Wait()
		close(done)
	}()

	timer := time.NewTimer(e.opts.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	e.mu.Lock()
	hung := make([]*unit, 0, len(e.live))
	for u := range e.live {
		hung = append(hung, u)
	}
	e.mu.Unlock()

	for _, u := range hung {
		u.kill()
	}
	e.lingered.Add(int64(len(hung)))
	e.logger.Warn("unit_killed", slog.Int("count", len(hung)), slog.Duration("grace_period", e.opts.GracePeriod))
	<-done
	return nil
}

// KilledUnits returns the number of units Close killed after their output
// was complete.
func (e *processExecutor) KilledUnits() int {
	return int(e.lingered.Load())
}

// liveUnits returns the number of units not yet reaped.
func (e *processExecutor) liveUnits() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

func attrsOf(err error) []any {
	attrs := grerrors.LogAttrs(err)
	out := make([]any, len(attrs))
	for i, a := range attrs {
		out[i] = a
	}
	return out
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
