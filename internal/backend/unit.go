package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Aman-CERP/ordgrep/internal/match"
	"github.com/Aman-CERP/ordgrep/internal/pattern"
)

// ServeUnit runs one worker unit: it reads a header from r, then requests
// lines one at a time, scans them, and writes record frames followed by a
// done frame to w. It is the body of the hidden "worker" command.
func ServeUnit(ctx context.Context, r io.Reader, w io.Writer) error {
	fr := newFrameReader(r)
	fw := newFrameWriter(w)

	hdr, err := readHeader(fr)
	if err != nil {
		_ = fw.send(Frame{Type: FrameError, Error: err.Error()})
		return err
	}

	mode, err := match.ParseMode(hdr.Mode)
	if err != nil {
		_ = fw.send(Frame{Type: FrameError, Error: err.Error()})
		return err
	}
	p, err := pattern.Compile(hdr.Pattern)
	if err != nil {
		_ = fw.send(Frame{Type: FrameError, Error: err.Error()})
		return err
	}

	lines := &frameLines{fr: fr, fw: fw}
	for rec := range match.Matches(hdr.Name, lines, p, mode) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fw.send(Frame{Type: FrameRecord, Record: &rec}); err != nil {
			return err
		}
	}

	done := Frame{Type: FrameDone}
	if lines.done != nil && !errors.Is(lines.done, io.EOF) {
		done.Error = lines.done.Error()
	}
	return fw.send(done)
}

func readHeader(fr *frameReader) (*Header, error) {
	f, err := fr.read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if f.Type != FrameHeader {
		return nil, fmt.Errorf("expected header frame, got %s", f.Type)
	}
	return f.Header, nil
}
