package source

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression formats recognised by extension.
const (
	FormatNone = ""
	FormatGzip = "gzip"
	FormatZstd = "zstd"
	FormatLZ4  = "lz4"
)

// DetectFormat returns the compression format implied by name's extension.
func DetectFormat(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		return FormatGzip
	case ".zst", ".zstd":
		return FormatZstd
	case ".lz4":
		return FormatLZ4
	default:
		return FormatNone
	}
}

// decompressor returns a reader over the decoded content of r and, when the
// decoder holds resources, a closer for it.
func decompressor(name string, r io.Reader) (io.Reader, io.Closer, error) {
	switch DetectFormat(name) {
	case FormatGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr, nil
	case FormatZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return zr, closerFunc(func() error { zr.Close(); return nil }), nil
	case FormatLZ4:
		return lz4.NewReader(r), nil, nil
	default:
		return r, nil, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
