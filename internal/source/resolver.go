package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/ordgrep/internal/gitignore"
)

// gitignoreCacheSize bounds the number of parsed .gitignore files kept.
const gitignoreCacheSize = 1000

// binarySniffSize is how much of a file is checked for NUL bytes.
const binarySniffSize = 512

// ResolveOptions configure a Resolver.
type ResolveOptions struct {
	// Recursive descends into directory arguments.
	Recursive bool
	// Exclude holds glob patterns for files and directories to skip in walks.
	Exclude []string
	// RespectGitignore skips paths ignored by .gitignore files in walks.
	RespectGitignore bool
	// Open is applied to every resolved handle.
	Open OpenOptions
	// Store serves s3:// arguments. Nil rejects them.
	Store ObjectStore
	// Stdin replaces os.Stdin for the "-" argument.
	Stdin io.Reader
	// OnError receives arguments that could not be resolved. They are skipped.
	OnError func(arg string, err error)
}

// Resolver turns path arguments into handles in a deterministic order.
type Resolver struct {
	opts ResolveOptions

	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	cacheMu        sync.RWMutex
}

// NewResolver creates a Resolver.
func NewResolver(opts ResolveOptions) (*Resolver, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	return &Resolver{opts: opts, gitignoreCache: cache}, nil
}

// Resolve yields one handle per searchable source named by args, in argument
// order. Directory trees are walked in lexical order. With no arguments it
// reads standard input, or the working directory when recursive.
func (r *Resolver) Resolve(ctx context.Context, args []string) iter.Seq[Handle] {
	if len(args) == 0 {
		if r.opts.Recursive {
			args = []string{"."}
		} else {
			args = []string{StdinName}
		}
	}

	return func(yield func(Handle) bool) {
		for _, arg := range args {
			if ctx.Err() != nil {
				return
			}
			if !r.resolveOne(ctx, arg, yield) {
				return
			}
		}
	}
}

// resolveOne returns false when the consumer stopped.
func (r *Resolver) resolveOne(ctx context.Context, arg string, yield func(Handle) bool) bool {
	switch {
	case arg == StdinName:
		return yield(&StdinHandle{In: r.opts.Stdin, Opts: r.opts.Open})
	case strings.HasPrefix(arg, S3Scheme):
		return r.resolveS3(ctx, arg, yield)
	}

	info, err := os.Stat(arg)
	if err != nil {
		r.reportError(arg, err)
		return true
	}
	if !info.IsDir() {
		return yield(&FileHandle{Path: arg, Opts: r.opts.Open})
	}
	if !r.opts.Recursive {
		r.reportError(arg, fmt.Errorf("is a directory"))
		return true
	}
	return r.walk(ctx, arg, yield)
}

func (r *Resolver) walk(ctx context.Context, root string, yield func(Handle) bool) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		r.reportError(root, err)
		return true
	}

	stopped := false
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			r.reportError(path, err)
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if r.shouldExcludeDir(relPath, absRoot) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if r.shouldExcludeFile(relPath, absRoot) {
			return nil
		}
		if r.isBinary(path) {
			return nil
		}

		if !yield(&FileHandle{Path: path, Opts: r.opts.Open}) {
			stopped = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		r.reportError(root, err)
	}
	return !stopped && ctx.Err() == nil
}

func (r *Resolver) resolveS3(ctx context.Context, arg string, yield func(Handle) bool) bool {
	if r.opts.Store == nil {
		r.reportError(arg, fmt.Errorf("s3 is not configured"))
		return true
	}
	bucket, key, err := ParseS3URL(arg)
	if err != nil {
		r.reportError(arg, err)
		return true
	}

	if key != "" && !strings.HasSuffix(key, "/") {
		return yield(r.objectHandle(ctx, bucket, key))
	}
	if !r.opts.Recursive {
		r.reportError(arg, fmt.Errorf("is a prefix"))
		return true
	}

	keys, err := r.opts.Store.List(ctx, bucket, key)
	if err != nil {
		r.reportError(arg, err)
		return true
	}
	for _, k := range keys {
		if r.matchesExclude(k) {
			continue
		}
		if !yield(r.objectHandle(ctx, bucket, k)) {
			return false
		}
	}
	return true
}

func (r *Resolver) objectHandle(ctx context.Context, bucket, key string) *ObjectHandle {
	return &ObjectHandle{Store: r.opts.Store, Bucket: bucket, Key: key, Opts: r.opts.Open, Ctx: ctx}
}

func (r *Resolver) reportError(arg string, err error) {
	if r.opts.OnError != nil {
		r.opts.OnError(arg, err)
	}
}

// shouldExcludeDir checks if a directory should be skipped during a walk.
func (r *Resolver) shouldExcludeDir(relPath, absRoot string) bool {
	if filepath.Base(relPath) == ".git" {
		return true
	}
	for _, pattern := range r.opts.Exclude {
		if matchDirPattern(relPath, pattern) {
			return true
		}
	}
	return r.opts.RespectGitignore && r.isGitignored(relPath, absRoot, true)
}

// shouldExcludeFile checks if a file should be skipped during a walk.
func (r *Resolver) shouldExcludeFile(relPath, absRoot string) bool {
	if r.matchesExclude(relPath) {
		return true
	}
	return r.opts.RespectGitignore && r.isGitignored(relPath, absRoot, false)
}

func (r *Resolver) matchesExclude(relPath string) bool {
	baseName := filepath.Base(relPath)
	for _, pattern := range r.opts.Exclude {
		if matchFilePattern(baseName, relPath, pattern) {
			return true
		}
	}
	return false
}

// isBinary reports whether the first bytes of a file contain NUL.
// Files that will be decompressed are never treated as binary.
func (r *Resolver) isBinary(path string) bool {
	if r.opts.Open.Decompress && DetectFormat(path) != FormatNone {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, binarySniffSize)
	n, err := f.Read(buf)
	if err != nil {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}

// isGitignored consults the .gitignore of the walk root and of every
// directory between it and relPath.
func (r *Resolver) isGitignored(relPath, absRoot string, isDir bool) bool {
	if m := r.matcherFor(absRoot, ""); m != nil && m.Match(relPath, isDir) {
		return true
	}

	dir := filepath.Dir(relPath)
	if dir == "." {
		return false
	}
	currentDir := absRoot
	currentBase := ""
	for _, part := range strings.Split(dir, string(filepath.Separator)) {
		currentDir = filepath.Join(currentDir, part)
		currentBase = filepath.Join(currentBase, part)
		if m := r.matcherFor(currentDir, currentBase); m != nil && m.Match(relPath, isDir) {
			return true
		}
	}
	return false
}

// matcherFor returns the cached matcher for dir's .gitignore, or nil.
// Directories without one are cached as nil as well.
func (r *Resolver) matcherFor(dir, base string) *gitignore.Matcher {
	r.cacheMu.RLock()
	m, ok := r.gitignoreCache.Get(dir)
	r.cacheMu.RUnlock()
	if ok {
		return m
	}

	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		m = gitignore.New()
		if err := m.AddFromFile(path, base); err != nil {
			m = nil
		}
	}

	r.cacheMu.Lock()
	r.gitignoreCache.Add(dir, m)
	r.cacheMu.Unlock()
	return m
}

// matchDirPattern checks if a directory path matches an exclude pattern.
func matchDirPattern(relPath, pattern string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "**/"); ok {
		suffix = strings.TrimSuffix(suffix, "/**")
		for _, part := range strings.Split(relPath, string(filepath.Separator)) {
			if part == suffix {
				return true
			}
		}
		return false
	}

	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return relPath == prefix || strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	if matched, err := filepath.Match(pattern, filepath.Base(relPath)); err == nil && matched {
		return true
	}
	return relPath == pattern
}

// matchFilePattern checks if a file matches an exclude pattern.
// Patterns without a separator apply to the base name; others to the path.
func matchFilePattern(baseName, relPath, pattern string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok && !strings.HasPrefix(pattern, "**/") {
		return strings.HasPrefix(relPath, prefix+string(filepath.Separator))
	}

	if suffix, ok := strings.CutPrefix(pattern, "**/"); ok {
		if matched, err := filepath.Match(suffix, baseName); err == nil && matched {
			return true
		}
		for _, part := range strings.Split(filepath.Dir(relPath), string(filepath.Separator)) {
			if part == strings.TrimSuffix(suffix, "/**") {
				return true
			}
		}
		return false
	}

	if strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.ToSlash(relPath))
		return err == nil && matched
	}

	matched, err := filepath.Match(pattern, baseName)
	return err == nil && matched
}
