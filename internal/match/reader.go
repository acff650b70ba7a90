package match

import (
	"errors"
	"io"
)

// SliceReader is a LineReader over an in-memory slice of lines.
type SliceReader struct {
	lines []string
	next  int
	// FailAfter, when positive, makes ReadLine return ErrDecode once that
	// many lines have been read.
	FailAfter int
}

// NewSliceReader returns a LineReader yielding lines in order.
func NewSliceReader(lines ...string) *SliceReader {
	return &SliceReader{lines: lines}
}

// ReadLine implements LineReader.
func (r *SliceReader) ReadLine() (string, error) {
	if r.FailAfter > 0 && r.next >= r.FailAfter {
		return "", ErrDecode
	}
	if r.next >= len(r.lines) {
		return "", io.EOF
	}
	line := r.lines[r.next]
	r.next++
	return line, nil
}

// Consumed returns the number of lines handed out so far.
func (r *SliceReader) Consumed() int {
	return r.next
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
