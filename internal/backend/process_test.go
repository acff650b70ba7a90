package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ordgrep/internal/channel"
	grerrors "github.com/Aman-CERP/ordgrep/internal/errors"
	"github.com/Aman-CERP/ordgrep/internal/match"
	"github.com/Aman-CERP/ordgrep/internal/pattern"
	"github.com/Aman-CERP/ordgrep/internal/source"
	"github.com/Aman-CERP/ordgrep/internal/worker"
)

const unitEnv = "ORDGREP_BACKEND_TEST_UNIT"

// TestMain lets the test binary act as a worker unit. The value of unitEnv
// selects how the unit behaves.
func TestMain(m *testing.M) {
	switch os.Getenv(unitEnv) {
	case "":
		os.Exit(m.Run())
	case "serve":
		if err := ServeUnit(context.Background(), os.Stdin, os.Stdout); err != nil {
			os.Exit(3)
		}
	case "crash":
		fmt.Fprintln(os.Stderr, "unit blew up")
		os.Exit(1)
	case "garbage":
		fmt.Fprintln(os.Stdout, "this is not a frame")
	case "hang":
		_, _ = io.Copy(io.Discard, os.Stdin)
		time.Sleep(time.Hour)
	case "linger":
		_ = ServeUnit(context.Background(), os.Stdin, os.Stdout)
		time.Sleep(time.Hour)
	}
	os.Exit(0)
}

func unitOptions(behavior string) ProcessOptions {
	return ProcessOptions{
		Executable: os.Args[0],
		Args:       []string{"-test.run=^$"},
		Env:        []string{unitEnv + "=" + behavior},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func executeAll(t *testing.T, exec Executor, h source.Handle, p match.Pattern, mode match.Mode) ([]match.Record, worker.Result) {
	t.Helper()
	ch := channel.New[match.Record](4)
	resc := make(chan worker.Result, 1)
	go func() {
		resc <- exec.Execute(context.Background(), worker.Job{Handle: h, Pattern: p, Mode: mode, Out: ch})
	}()

	var out []match.Record
	for {
		rec, ok, err := ch.Get(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, rec)
	}
	return out, <-resc
}

func TestProcess_ScansInUnit(t *testing.T) {
	exec := newProcessExecutor(newProcess(unitOptions("serve")).opts, quietLogger())
	lines := []string{"foo", "bar", "foobar", "baz"}

	got, res := executeAll(t, exec, source.Lines("a.txt", lines...), pattern.Literal("foo"), match.ModeNormal)
	require.NoError(t, res.ReadErr)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, []match.Record{
		match.NewLineRecord("a.txt", 1, "foo", "foo"),
		match.NewLineRecord("a.txt", 3, "foobar", "foo"),
	}, got)

	got, _ = executeAll(t, exec, source.Lines("a.txt", lines...), pattern.Literal("foo"), match.ModeFilesWithMatch)
	assert.Equal(t, []match.Record{match.NewFileRecord("a.txt")}, got)

	got, _ = executeAll(t, exec, source.Lines("b.txt", "bar", "baz"), pattern.Literal("foo"), match.ModeFilesWithoutMatch)
	assert.Equal(t, []match.Record{match.NewFileRecord("b.txt")}, got)

	require.NoError(t, exec.Close())
	assert.Zero(t, exec.liveUnits())
}

func TestProcess_MatchesInProcess(t *testing.T) {
	p := pattern.MustCompile(pattern.Spec{Patterns: []string{`^b`, `r$`}, IgnoreCase: true})
	h := func() source.Handle { return source.Lines("c", "Bar", "xyz", "car", "BOB", "fuR") }

	exec := newProcessExecutor(newProcess(unitOptions("serve")).opts, quietLogger())
	defer func() { _ = exec.Close() }()

	for _, mode := range []match.Mode{match.ModeNormal, match.ModeInvert, match.ModeFilesWithMatch, match.ModeFilesWithoutMatch} {
		t.Run(mode.String(), func(t *testing.T) {
			want, _ := executeAll(t, inProcess{}, h(), p, mode)
			got, _ := executeAll(t, exec, h(), p, mode)
			assert.Equal(t, want, got)
		})
	}
}

func TestProcess_DecodeFailureInParent(t *testing.T) {
	exec := newProcessExecutor(newProcess(unitOptions("serve")).opts, quietLogger())
	defer func() { _ = exec.Close() }()

	h := &source.MemoryHandle{Filename: "bad", Content: "foo 1\n\xff\xfe foo\nfoo 3\n"}
	got, res := executeAll(t, exec, h, pattern.Literal("foo"), match.ModeNormal)
	assert.Equal(t, []match.Record{match.NewLineRecord("bad", 1, "foo 1", "foo")}, got)
	require.Error(t, res.ReadErr)
	assert.Contains(t, res.ReadErr.Error(), match.ErrDecode.Error())
}

func TestProcess_UnitFailuresDegrade(t *testing.T) {
	tests := []struct {
		name     string
		behavior string
		idle     time.Duration
		lifetime time.Duration
		code     string
		stderr   string
	}{
		{name: "crash", behavior: "crash", code: grerrors.ErrCodeUnitCrashed, stderr: "unit blew up"},
		{name: "garbage", behavior: "garbage", code: grerrors.ErrCodeUnitProtocol},
		{name: "silent", behavior: "hang", idle: 200 * time.Millisecond, code: grerrors.ErrCodeUnitTimeout},
		{name: "lifetime", behavior: "hang", lifetime: 200 * time.Millisecond, code: grerrors.ErrCodeUnitTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := unitOptions(tt.behavior)
			opts.IdleTimeout = tt.idle
			opts.UnitTimeout = tt.lifetime
			exec := newProcessExecutor(newProcess(opts).opts, quietLogger())

			got, res := executeAll(t, exec, source.Lines("a", "foo", "foo"), pattern.Literal("foo"), match.ModeNormal)
			assert.Empty(t, got)
			require.Error(t, res.ReadErr)
			assert.Equal(t, tt.code, grerrors.GetCode(res.ReadErr))
			if tt.stderr != "" {
				ge, ok := grerrors.As(res.ReadErr)
				require.True(t, ok)
				assert.Contains(t, ge.Details["stderr"], tt.stderr)
			}

			require.NoError(t, exec.Close())
		})
	}
}

func TestProcess_CloseKillsLingeringUnits(t *testing.T) {
	opts := newProcess(unitOptions("linger")).opts
	opts.GracePeriod = 100 * time.Millisecond
	exec := newProcessExecutor(opts, quietLogger())

	got, res := executeAll(t, exec, source.Lines("a", "foo"), pattern.Literal("foo"), match.ModeNormal)
	require.NoError(t, res.ReadErr)
	assert.Len(t, got, 1)

	start := time.Now()
	require.NoError(t, exec.Close())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, exec.liveUnits())
	assert.Equal(t, 1, exec.KilledUnits())
}

// countingHandle counts the lines read from its source.
type countingHandle struct {
	*source.MemoryHandle
	reads *atomic.Int64
}

func (h countingHandle) Open() (source.Reader, error) {
	r, err := h.MemoryHandle.Open()
	if err != nil {
		return nil, err
	}
	return &countingReader{Reader: r, reads: h.reads}, nil
}

type countingReader struct {
	source.Reader
	reads *atomic.Int64
}

func (r *countingReader) ReadLine() (string, error) {
	line, err := r.Reader.ReadLine()
	if err == nil {
		r.reads.Add(1)
	}
	return line, err
}

func TestProcess_FilesWithMatchReadsOneLine(t *testing.T) {
	exec := newProcessExecutor(newProcess(unitOptions("serve")).opts, quietLogger())
	defer func() { _ = exec.Close() }()

	// Given: a source whose first line matches
	var reads atomic.Int64
	h := countingHandle{MemoryHandle: source.Lines("a", "foo", "bar", "foobar"), reads: &reads}

	// When: the unit lists it
	got, res := executeAll(t, exec, h, pattern.Literal("foo"), match.ModeFilesWithMatch)

	// Then: the parent read only the line the unit asked for
	require.NoError(t, res.ReadErr)
	assert.Equal(t, []match.Record{match.NewFileRecord("a")}, got)
	assert.Equal(t, int64(1), reads.Load())
}

func TestProcess_FullChannelStopsReading(t *testing.T) {
	exec := newProcessExecutor(newProcess(unitOptions("serve")).opts, quietLogger())
	defer func() { _ = exec.Close() }()

	// Given: a channel of capacity 2 that nobody drains
	const capacity = 2
	var reads atomic.Int64
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "x"
	}
	h := countingHandle{MemoryHandle: source.Lines("a", lines...), reads: &reads}
	ch := channel.New[match.Record](capacity)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resc := make(chan worker.Result, 1)

	// When: every line matches
	go func() {
		resc <- exec.Execute(ctx, worker.Job{Handle: h, Pattern: pattern.Literal("x"), Out: ch})
	}()
	require.Eventually(t, func() bool { return ch.Len() == capacity }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	// Then: the parent holds at most one record and reads no further ahead
	assert.LessOrEqual(t, reads.Load(), int64(capacity+1))

	cancel()
	res := <-resc
	assert.True(t, res.Cancelled)
}

func TestProcess_SlowConsumerIsNotIdle(t *testing.T) {
	opts := unitOptions("serve")
	opts.IdleTimeout = 100 * time.Millisecond
	exec := newProcessExecutor(newProcess(opts).opts, quietLogger())
	defer func() { _ = exec.Close() }()

	// Given: a consumer that waits longer than the idle timeout per record
	ch := channel.New[match.Record](1)
	resc := make(chan worker.Result, 1)
	go func() {
		resc <- exec.Execute(context.Background(), worker.Job{
			Handle:  source.Lines("a", "x", "x", "x"),
			Pattern: pattern.Literal("x"),
			Out:     ch,
		})
	}()

	// When: records are taken slowly
	n := 0
	for {
		time.Sleep(250 * time.Millisecond)
		_, ok, err := ch.Get(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		n++
	}

	// Then: the unit was not killed while the parent waited on the channel
	res := <-resc
	require.NoError(t, res.ReadErr)
	assert.Equal(t, 3, n)
}

func TestProcess_CancelWhileBlocked(t *testing.T) {
	exec := newProcessExecutor(newProcess(unitOptions("serve")).opts, quietLogger())
	defer func() { _ = exec.Close() }()

	ch := channel.New[match.Record](1)
	ctx, cancel := context.WithCancel(context.Background())
	resc := make(chan worker.Result, 1)
	go func() {
		resc <- exec.Execute(ctx, worker.Job{
			Handle:  source.Lines("a", "x", "x", "x", "x"),
			Pattern: pattern.Literal("x"),
			Out:     ch,
		})
	}()

	require.Eventually(t, func() bool { return ch.Len() == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case res := <-resc:
		assert.True(t, res.Cancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after cancel")
	}
	assert.True(t, ch.Closed())
}

func TestProcess_SpawnFailureFallsBack(t *testing.T) {
	opts := newProcess(ProcessOptions{
		Executable:       "/nonexistent/ordgrep-unit",
		MaxSpawnFailures: 1,
		Retry:            &grerrors.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, Multiplier: 1},
	}).opts
	exec := newProcessExecutor(opts, quietLogger())

	for range 2 {
		got, res := executeAll(t, exec, source.Lines("a", "foo", "bar"), pattern.Literal("foo"), match.ModeNormal)
		require.NoError(t, res.ReadErr)
		assert.Equal(t, []match.Record{match.NewLineRecord("a", 1, "foo", "foo")}, got)
	}
	assert.Equal(t, grerrors.StateOpen, exec.breaker.State())
	require.NoError(t, exec.Close())
}

type opaquePattern struct{}

func (opaquePattern) Search(line string) (string, bool) { return line, strings.Contains(line, "x") }

func TestProcess_AcceptsOnlyTransferablePatterns(t *testing.T) {
	b := newProcess(ProcessOptions{})
	assert.NoError(t, b.Accepts(pattern.Literal("x")))

	err := b.Accepts(opaquePattern{})
	require.Error(t, err)
	assert.Equal(t, grerrors.ErrCodePatternNotPortable, grerrors.GetCode(err))
}

func TestProcess_Defaults(t *testing.T) {
	p := newProcess(ProcessOptions{})
	assert.Equal(t, []string{WorkerCommand}, p.opts.Args)
	assert.Equal(t, DefaultGracePeriod, p.opts.GracePeriod)
	assert.Equal(t, DefaultIdleTimeout, p.opts.IdleTimeout)
	assert.Equal(t, DefaultMaxSpawnFailures, p.opts.MaxSpawnFailures)
	assert.NotEmpty(t, p.opts.Executable)
}

func TestTailBuffer_KeepsTail(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}

// serveLines runs ServeUnit against a parent that answers each next frame
// from lines. It returns the records and the number of lines sent.
func serveLines(t *testing.T, hdr Header, lines []string) ([]match.Record, int) {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		err := ServeUnit(context.Background(), inR, outW)
		_ = outW.Close()
		errc <- err
	}()

	fw := newFrameWriter(inW)
	require.NoError(t, fw.send(Frame{Type: FrameHeader, Header: &hdr}))

	fr := newFrameReader(outR)
	var recs []match.Record
	sent := 0
	for {
		f, err := fr.read()
		require.NoError(t, err)
		switch f.Type {
		case FrameNext:
			reply := Frame{Type: FrameEOF}
			if sent < len(lines) {
				reply = Frame{Type: FrameLine, Line: lines[sent]}
				sent++
			}
			require.NoError(t, fw.send(reply))
		case FrameRecord:
			recs = append(recs, *f.Record)
		case FrameDone:
			assert.Empty(t, f.Error)
			_ = inW.Close()
			require.NoError(t, <-errc)
			_, err := fr.read()
			assert.ErrorIs(t, err, io.EOF)
			return recs, sent
		default:
			t.Fatalf("unexpected %s frame", f.Type)
		}
	}
}

func TestServeUnit_RoundTrip(t *testing.T) {
	recs, sent := serveLines(t, Header{
		Name:    "f",
		Mode:    match.ModeInvert.String(),
		Pattern: pattern.Spec{Patterns: []string{"a"}},
	}, []string{"abc", "xyz", ""})

	assert.Equal(t, 3, sent)
	assert.Equal(t, []match.Record{
		match.NewInvertedRecord("f", 2, "xyz"),
		match.NewInvertedRecord("f", 3, ""),
	}, recs)
}

func TestServeUnit_RequestsOnlyNeededLines(t *testing.T) {
	recs, sent := serveLines(t, Header{
		Name:    "f",
		Mode:    match.ModeFilesWithMatch.String(),
		Pattern: pattern.Spec{Patterns: []string{"a"}},
	}, []string{"xyz", "abc", "xyz", "abc"})

	assert.Equal(t, 2, sent)
	assert.Equal(t, []match.Record{match.NewFileRecord("f")}, recs)
}

func TestServeUnit_TruncatedInput(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go func() {
		_ = ServeUnit(context.Background(), inR, outW)
		_ = outW.Close()
	}()

	// Given: a parent that reports a decode error on the first line
	fw := newFrameWriter(inW)
	require.NoError(t, fw.send(Frame{Type: FrameHeader, Header: &Header{
		Name:    "f",
		Mode:    match.ModeNormal.String(),
		Pattern: pattern.Spec{Patterns: []string{"a"}},
	}}))
	fr := newFrameReader(outR)
	f, err := fr.read()
	require.NoError(t, err)
	require.Equal(t, FrameNext, f.Type)

	// When: the eof frame carries the error
	require.NoError(t, fw.send(Frame{Type: FrameEOF, Error: "bad byte"}))

	// Then: the done frame reports it
	f, err = fr.read()
	require.NoError(t, err)
	assert.Equal(t, FrameDone, f.Type)
	assert.Contains(t, f.Error, "bad byte")
	_ = inW.Close()
}

func TestServeUnit_BadHeader(t *testing.T) {
	var in bytes.Buffer
	fw := newFrameWriter(&in)
	require.NoError(t, fw.write(Frame{Type: FrameHeader, Header: &Header{
		Name:    "f",
		Pattern: pattern.Spec{Patterns: []string{"("}},
	}}))
	require.NoError(t, fw.flush())

	var out bytes.Buffer
	require.Error(t, ServeUnit(context.Background(), &in, &out))

	f, err := newFrameReader(&out).read()
	require.NoError(t, err)
	assert.Equal(t, FrameError, f.Type)
	assert.NotEmpty(t, f.Error)
}

func TestFrameReader_RejectsMalformed(t *testing.T) {
	for _, in := range []string{"{not json}\n", `{"t":"bogus"}` + "\n", `{"t":"record"}` + "\n"} {
		_, err := newFrameReader(strings.NewReader(in)).read()
		assert.Error(t, err, in)
		assert.NotErrorIs(t, err, io.EOF)
	}
}
