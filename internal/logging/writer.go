package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// rotatedSuffix ends every rotated generation: ordgrep.log.1.gz is the newest.
const rotatedSuffix = ".gz"

// RotatingWriter is an io.Writer over a log file that rotates by size.
// Rotated generations are gzip-compressed and numbered from 1, newest first.
type RotatingWriter struct {
	path  string
	limit int64
	keep  int

	mu       sync.Mutex
	f        *os.File
	size     int64
	syncEach bool
}

// NewRotatingWriter opens path for appending. The file rotates once a write
// would take it past maxSizeMB; maxFiles generations are kept.
// Writes are synced immediately unless disabled with SetImmediateSync.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &RotatingWriter{
		path:     path,
		limit:    int64(maxSizeMB) << 20,
		keep:     maxFiles,
		syncEach: true,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetImmediateSync enables or disables a sync after each write, which keeps
// `ordgrep logs -f` current.
func (w *RotatingWriter) SetImmediateSync(enabled bool) {
	w.mu.Lock()
	w.syncEach = enabled
	w.mu.Unlock()
}

// Write implements io.Writer. A failed rotation keeps writing to the
// current file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "ordgrep: log rotation failed: %v\n", err)
		}
	}
	if w.f == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}

	n, err := w.f.Write(p)
	w.size += int64(n)
	if err == nil && w.syncEach {
		_ = w.f.Sync()
	}
	return n, err
}

// Sync flushes the file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

// Close closes the file. Later writes reopen it.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.f = f
	w.size = info.Size()
	return nil
}

// rotate shifts every generation up by one, dropping those past keep, and
// compresses the current file into generation 1.
func (w *RotatingWriter) rotate() error {
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.f = nil
	}

	gens, err := RotatedLogs(w.path)
	if err != nil {
		return err
	}
	// Oldest first so no rename overwrites a generation still to move.
	for i := len(gens) - 1; i >= 0; i-- {
		n := i + 1
		if n >= w.keep {
			_ = os.Remove(gens[i])
			continue
		}
		if err := os.Rename(gens[i], generationPath(w.path, n+1)); err != nil {
			return fmt.Errorf("failed to shift %s: %w", gens[i], err)
		}
	}

	if w.keep > 0 {
		if err := compressFile(w.path, generationPath(w.path, 1)); err != nil {
			return err
		}
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove rotated log: %w", err)
	}
	return w.open()
}

func generationPath(path string, n int) string {
	return path + "." + strconv.Itoa(n) + rotatedSuffix
}

// RotatedLogs returns the rotated generations of the log at path, newest
// first. Gaps in the numbering are closed up.
func RotatedLogs(path string) ([]string, error) {
	matches, err := filepath.Glob(path + ".*" + rotatedSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to find rotated logs: %w", err)
	}

	type generation struct {
		path string
		n    int
	}
	var gens []generation
	prefix := filepath.Base(path) + "."
	for _, m := range matches {
		num := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), prefix), rotatedSuffix)
		n, err := strconv.Atoi(num)
		if err != nil || n < 1 {
			continue
		}
		gens = append(gens, generation{path: m, n: n})
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].n < gens[j].n })

	out := make([]string, len(gens))
	for i, g := range gens {
		out[i] = g.path
	}
	return out, nil
}

func compressFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open log for compression: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	zw := gzip.NewWriter(out)
	if _, err = io.Copy(zw, in); err != nil {
		return fmt.Errorf("failed to compress log: %w", err)
	}
	return zw.Close()
}

// openGeneration opens a rotated generation for reading.
func openGeneration(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{zr, closerFunc(func() error {
		_ = zr.Close()
		return f.Close()
	})}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
