// Package worker drives the line matcher over one source into its channel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Aman-CERP/ordgrep/internal/channel"
	"github.com/Aman-CERP/ordgrep/internal/match"
	"github.com/Aman-CERP/ordgrep/internal/source"
)

// Result summarises one worker run.
type Result struct {
	// Records is the number of records delivered to the channel.
	Records int
	// OpenErr is set when the source could not be opened.
	OpenErr error
	// ReadErr is the read or decode error that ended the source early.
	ReadErr error
	// Cancelled is set when ctx ended the run before the source was exhausted.
	Cancelled bool
}

// Job is one source scheduled onto a channel.
type Job struct {
	Handle  source.Handle
	Pattern match.Pattern
	Mode    match.Mode
	Out     *channel.Channel[match.Record]
}

// Run scans job.Handle and puts every record into job.Out.
// job.Out is closed on every return path.
func Run(ctx context.Context, job Job) (res Result) {
	defer job.Out.Close()
	defer func() {
		if r := recover(); r != nil {
			res.ReadErr = fmt.Errorf("worker panic: %v", r)
		}
	}()

	if ctx.Err() != nil {
		res.Cancelled = true
		return res
	}

	r, err := job.Handle.Open()
	if err != nil {
		res.OpenErr = err
		return res
	}
	defer func() { _ = r.Close() }()

	return Drain(ctx, job.Handle.Name(), r, job.Pattern, job.Mode, job.Out.Put)
}

// Drain feeds the records matched from lines to put until the lines run out,
// put fails, or ctx is done. It does not close anything.
func Drain(ctx context.Context, name string, lines match.LineReader, p match.Pattern, mode match.Mode, put func(context.Context, match.Record) error) Result {
	var res Result
	rec := &recordingReader{r: lines}

	for record := range match.Matches(name, rec, p, mode) {
		if err := put(ctx, record); err != nil {
			res.Cancelled = ctx.Err() != nil
			return res
		}
		res.Records++
	}
	res.ReadErr = rec.err
	return res
}

// recordingReader remembers the error that ended the stream, other than EOF.
type recordingReader struct {
	r   match.LineReader
	err error
}

func (r *recordingReader) ReadLine() (string, error) {
	line, err := r.r.ReadLine()
	if err != nil && !errors.Is(err, io.EOF) && r.err == nil {
		r.err = err
	}
	return line, err
}
