package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/Aman-CERP/ordgrep/internal/match"
)

// Encoding names accepted by NewLineReader.
const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin1"
)

// ValidEncoding reports whether name is a supported encoding.
func ValidEncoding(name string) bool {
	switch strings.ToLower(name) {
	case EncodingUTF8, "utf8", EncodingLatin1, "iso-8859-1":
		return true
	default:
		return false
	}
}

// Reader is a LineReader that must be closed by whoever opened it.
type Reader interface {
	match.LineReader
	io.Closer
}

// lineReader splits a byte stream into decoded lines without line terminators.
type lineReader struct {
	br      *bufio.Reader
	closer  io.Closer
	decode  func(string) (string, error)
	done    bool
	lastErr error
}

// NewLineReader wraps r. Lines are split on '\n'; a trailing '\r' is dropped.
// With the utf-8 encoding an invalid byte sequence ends the stream with
// match.ErrDecode.
func NewLineReader(r io.Reader, closer io.Closer, encoding string) (Reader, error) {
	decode, err := decoderFor(encoding)
	if err != nil {
		return nil, err
	}
	return &lineReader{
		br:     bufio.NewReaderSize(r, 64*1024),
		closer: closer,
		decode: decode,
	}, nil
}

func decoderFor(encoding string) (func(string) (string, error), error) {
	switch strings.ToLower(encoding) {
	case "", EncodingUTF8, "utf8":
		return func(s string) (string, error) {
			if !utf8.ValidString(s) {
				return "", match.ErrDecode
			}
			return s, nil
		}, nil
	case EncodingLatin1, "iso-8859-1":
		dec := charmap.ISO8859_1.NewDecoder()
		return func(s string) (string, error) {
			out, err := dec.String(s)
			if err != nil {
				return "", fmt.Errorf("%w: %v", match.ErrDecode, err)
			}
			return out, nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// ReadLine implements match.LineReader.
func (l *lineReader) ReadLine() (string, error) {
	if l.done {
		return "", l.lastErr
	}

	raw, err := l.br.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", l.fail(err)
		}
		if raw == "" {
			return "", l.fail(io.EOF)
		}
		// Final line without a terminator; the next call reports EOF.
		l.done = true
		l.lastErr = io.EOF
	}

	raw = strings.TrimSuffix(raw, "\n")
	raw = strings.TrimSuffix(raw, "\r")

	line, err := l.decode(raw)
	if err != nil {
		return "", l.fail(err)
	}
	return line, nil
}

func (l *lineReader) fail(err error) error {
	l.done = true
	l.lastErr = err
	return err
}

// Close implements io.Closer.
func (l *lineReader) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
