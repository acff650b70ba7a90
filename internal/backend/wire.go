package backend

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Aman-CERP/ordgrep/internal/match"
	"github.com/Aman-CERP/ordgrep/internal/pattern"
)

// FrameType identifies a frame exchanged with a worker unit.
// Frames are newline-delimited JSON objects.
//
// The exchange is pulled by the unit. After the header, the unit sends a
// next frame whenever it wants a line and the parent answers with exactly
// one line or eof frame. The parent relays each record before it reads the
// unit's next request, so a unit never has more than one record in flight
// and the parent never reads a line the unit did not ask for.
type FrameType string

const (
	// FrameHeader opens a unit's input: what to scan and how.
	FrameHeader FrameType = "header"
	// FrameNext asks the parent for the next input line.
	FrameNext FrameType = "next"
	// FrameLine carries one input line.
	FrameLine FrameType = "line"
	// FrameEOF ends the input. A non-empty Error means the source was cut
	// short by a read or decode error.
	FrameEOF FrameType = "eof"
	// FrameRecord carries one result.
	FrameRecord FrameType = "record"
	// FrameDone ends a unit's output. A non-empty Error carries the error
	// that ended the unit's input early.
	FrameDone FrameType = "done"
	// FrameError reports a unit that could not start scanning.
	FrameError FrameType = "error"
)

// Header describes the scan a unit performs.
type Header struct {
	Name    string       `json:"name"`
	Mode    string       `json:"mode"`
	Pattern pattern.Spec `json:"pattern"`
}

// Frame is the unit of the parent/unit protocol.
type Frame struct {
	Type   FrameType     `json:"t"`
	Header *Header       `json:"h,omitempty"`
	Line   string        `json:"l,omitempty"`
	Record *match.Record `json:"r,omitempty"`
	Error  string        `json:"e,omitempty"`
}

// frameWriter encodes frames onto a buffered stream.
type frameWriter struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

func newFrameWriter(w io.Writer) *frameWriter {
	bw := bufio.NewWriter(w)
	return &frameWriter{bw: bw, enc: json.NewEncoder(bw)}
}

func (fw *frameWriter) write(f Frame) error {
	return fw.enc.Encode(f)
}

func (fw *frameWriter) flush() error {
	return fw.bw.Flush()
}

// send writes f and flushes it.
func (fw *frameWriter) send(f Frame) error {
	if err := fw.write(f); err != nil {
		return err
	}
	return fw.flush()
}

// frameReader decodes frames from a stream.
type frameReader struct {
	dec *json.Decoder
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{dec: json.NewDecoder(bufio.NewReader(r))}
}

// read returns io.EOF at a clean end of stream and a protocol error for any
// frame that does not decode or has an unknown type.
func (fr *frameReader) read() (Frame, error) {
	var f Frame
	if err := fr.dec.Decode(&f); err != nil {
		if err == io.EOF {
			return f, io.EOF
		}
		return f, fmt.Errorf("malformed frame: %w", err)
	}
	switch f.Type {
	case FrameHeader:
		if f.Header == nil {
			return f, fmt.Errorf("header frame without header")
		}
	case FrameRecord:
		if f.Record == nil {
			return f, fmt.Errorf("record frame without record")
		}
	case FrameNext, FrameLine, FrameEOF, FrameDone, FrameError:
	default:
		return f, fmt.Errorf("unknown frame type %q", f.Type)
	}
	return f, nil
}

// frameLines adapts the parent's line frames to a match.LineReader. Each
// ReadLine requests one line with a next frame.
type frameLines struct {
	fr   *frameReader
	fw   *frameWriter
	done error
}

func (l *frameLines) ReadLine() (string, error) {
	if l.done != nil {
		return "", l.done
	}
	if err := l.fw.send(Frame{Type: FrameNext}); err != nil {
		l.done = fmt.Errorf("%w: %v", match.ErrDecode, err)
		return "", l.done
	}
	f, err := l.fr.read()
	if err != nil {
		// Input cut off without an eof frame; the parent went away.
		l.done = fmt.Errorf("%w: %v", match.ErrDecode, err)
		return "", l.done
	}
	switch f.Type {
	case FrameLine:
		return f.Line, nil
	case FrameEOF:
		if f.Error != "" {
			l.done = fmt.Errorf("%w: %s", match.ErrDecode, f.Error)
		} else {
			l.done = io.EOF
		}
		return "", l.done
	default:
		l.done = fmt.Errorf("%w: unexpected %s frame", match.ErrDecode, f.Type)
		return "", l.done
	}
}
