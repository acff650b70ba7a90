// Package source resolves command-line arguments into an ordered sequence of
// named, lazily opened line sources: local files, directory trees, standard
// input and S3 objects.
package source

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// StdinName is the argument that selects standard input.
const StdinName = "-"

// Handle is a named source that can be opened once for reading.
type Handle interface {
	Name() string
	Open() (Reader, error)
}

// OpenOptions control how a source's bytes are turned into lines.
type OpenOptions struct {
	// Encoding is EncodingUTF8 or EncodingLatin1.
	Encoding string
	// Decompress decodes .gz, .zst and .lz4 content by file extension.
	Decompress bool
}

// FileHandle is a source backed by a local file.
type FileHandle struct {
	Path string
	Opts OpenOptions
}

// Name implements Handle.
func (h *FileHandle) Name() string { return h.Path }

// Open implements Handle.
func (h *FileHandle) Open() (Reader, error) {
	f, err := os.Open(h.Path)
	if err != nil {
		return nil, err
	}
	return wrap(f, h.Path, h.Opts)
}

// StdinHandle reads standard input. It can be opened only once.
type StdinHandle struct {
	In   io.Reader
	Opts OpenOptions
}

// Name implements Handle.
func (h *StdinHandle) Name() string { return "(standard input)" }

// Open implements Handle.
func (h *StdinHandle) Open() (Reader, error) {
	in := h.In
	if in == nil {
		in = os.Stdin
	}
	return NewLineReader(in, nil, h.Opts.Encoding)
}

// MemoryHandle serves fixed content. It is used by library callers and tests.
type MemoryHandle struct {
	Filename string
	Content  string
	// OpenErr, when set, is returned by Open.
	OpenErr error
}

// Lines returns a MemoryHandle whose content is lines joined by '\n'.
func Lines(name string, lines ...string) *MemoryHandle {
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	return &MemoryHandle{Filename: name, Content: content}
}

// Name implements Handle.
func (h *MemoryHandle) Name() string { return h.Filename }

// Open implements Handle.
func (h *MemoryHandle) Open() (Reader, error) {
	if h.OpenErr != nil {
		return nil, h.OpenErr
	}
	return NewLineReader(strings.NewReader(h.Content), nil, EncodingUTF8)
}

// wrap layers decompression and line splitting over an open stream.
func wrap(rc io.ReadCloser, name string, opts OpenOptions) (Reader, error) {
	var r io.Reader = rc
	closer := io.Closer(rc)
	if opts.Decompress {
		dr, dc, err := decompressor(name, rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		r = dr
		if dc != nil {
			closer = multiCloser{dc, rc}
		}
	}
	lr, err := NewLineReader(r, closer, opts.Encoding)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return lr, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
