package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ordgrep/internal/backend"
	"github.com/Aman-CERP/ordgrep/internal/config"
	grerrors "github.com/Aman-CERP/ordgrep/internal/errors"
	"github.com/Aman-CERP/ordgrep/internal/logging"
	"github.com/Aman-CERP/ordgrep/internal/match"
	"github.com/Aman-CERP/ordgrep/internal/pattern"
	"github.com/Aman-CERP/ordgrep/internal/profiling"
	"github.com/Aman-CERP/ordgrep/internal/render"
	"github.com/Aman-CERP/ordgrep/internal/session"
	"github.com/Aman-CERP/ordgrep/internal/source"
	"github.com/Aman-CERP/ordgrep/internal/ui"
)

// searchOptions holds the root command's flags.
type searchOptions struct {
	patterns   []string
	fixed      bool
	ignoreCase bool
	word       bool
	lineRegexp bool

	invert       bool
	filesWith    bool
	filesWithout bool

	recursive    bool
	lineNumbers  bool
	onlyMatching bool
	quiet        bool
	withFilename bool
	noFilename   bool

	backend    string
	maxFiles   int
	maxMatches int
	color      string
	encoding   string
	decompress bool
	exclude    []string
	noIgnore   bool

	progress   bool
	debug      bool
	configPath string
	profile    profiling.Options
}

func (o *searchOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()

	// Pattern
	f.StringArrayVarP(&o.patterns, "regexp", "e", nil, "Pattern to search for (repeatable)")
	f.BoolVarP(&o.fixed, "fixed-strings", "F", false, "Interpret patterns as literal strings")
	f.BoolVarP(&o.ignoreCase, "ignore-case", "i", false, "Ignore case distinctions")
	f.BoolVarP(&o.word, "word-regexp", "w", false, "Match only whole words")
	f.BoolVarP(&o.lineRegexp, "line-regexp", "x", false, "Match only whole lines")

	// Mode
	f.BoolVarP(&o.invert, "invert-match", "v", false, "Select non-matching lines")
	f.BoolVarP(&o.filesWith, "files-with-matches", "l", false, "Print only names of files with a match")
	f.BoolVarP(&o.filesWithout, "files-without-match", "L", false, "Print only names of files without a match")

	// Output
	f.BoolVarP(&o.recursive, "recursive", "r", false, "Search directories recursively")
	f.BoolVarP(&o.lineNumbers, "line-number", "n", false, "Prefix lines with their line number")
	f.BoolVarP(&o.onlyMatching, "only-matching", "o", false, "Print only the matched part of lines")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "Print nothing; exit 0 on the first match")
	f.BoolVarP(&o.withFilename, "with-filename", "H", false, "Prefix lines with their filename")
	f.BoolVarP(&o.noFilename, "no-filename", "h", false, "Never prefix lines with their filename")
	f.StringVar(&o.color, "color", "", "Highlight matches: auto, always or never")

	// Engine
	f.StringVar(&o.backend, "backend", "", "Backend: sequential, thread, pool or process")
	f.IntVar(&o.maxFiles, "max-files", 0, "Maximum sources searched at once")
	f.IntVar(&o.maxMatches, "max-matches", 0, "Maximum records buffered per source")
	f.StringVar(&o.encoding, "encoding", "", "Source encoding: utf-8 or latin1")
	f.BoolVar(&o.decompress, "decompress", false, "Search .gz, .zst and .lz4 files decompressed")
	f.StringArrayVar(&o.exclude, "exclude", nil, "Glob of paths to skip in recursive walks (repeatable)")
	f.BoolVar(&o.noIgnore, "no-ignore", false, "Do not respect .gitignore files")

	// Diagnostics
	f.BoolVar(&o.progress, "progress", false, "Show search progress on stderr")
	f.BoolVar(&o.debug, "debug", false, "Enable debug logging to ~/.ordgrep/logs/")
	f.StringVar(&o.configPath, "config", "", "Config file to use instead of the project config")
	f.StringVar(&o.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	f.StringVar(&o.profile.Heap, "profile-mem", "", "Write memory profile to file")
	f.StringVar(&o.profile.Trace, "profile-trace", "", "Write execution trace to file")
	f.StringVar(&o.profile.Goroutine, "profile-goroutine", "", "Write goroutine profile to file after the search")
}

// mode resolves the mode flags.
func (o *searchOptions) mode() (match.Mode, error) {
	switch {
	case o.filesWith && o.filesWithout:
		return 0, grerrors.UsageError("-l and -L cannot be combined")
	case o.invert && (o.filesWith || o.filesWithout):
		return 0, grerrors.UsageError("-v cannot be combined with -l or -L")
	case o.filesWith:
		return match.ModeFilesWithMatch, nil
	case o.filesWithout:
		return match.ModeFilesWithoutMatch, nil
	case o.invert:
		return match.ModeInvert, nil
	default:
		return match.ModeNormal, nil
	}
}

// applyTo overrides cfg with the flags that were set, the last layer of
// configuration precedence.
func (o *searchOptions) applyTo(flags interface{ Changed(string) bool }, cfg *config.Config) error {
	if flags.Changed("backend") {
		cfg.Search.Backend = o.backend
	}
	if flags.Changed("max-files") {
		cfg.Search.MaxFiles = o.maxFiles
	}
	if flags.Changed("max-matches") {
		cfg.Search.MaxMatches = o.maxMatches
	}
	if flags.Changed("encoding") {
		cfg.Search.Encoding = o.encoding
	}
	if flags.Changed("decompress") {
		cfg.Search.Decompress = o.decompress
	}
	if flags.Changed("color") {
		cfg.Output.Color = o.color
	}
	if o.noIgnore {
		cfg.Paths.RespectGitignore = false
	}
	cfg.Paths.Exclude = append(cfg.Paths.Exclude, o.exclude...)
	if o.debug {
		cfg.LogLevel = "debug"
	}
	return cfg.Validate()
}

// patternSpec splits args into the pattern and the paths to search.
func (o *searchOptions) patternSpec(args []string) (pattern.Spec, []string, error) {
	patterns, paths := o.patterns, args
	if len(patterns) == 0 {
		if len(args) == 0 {
			return pattern.Spec{}, nil, grerrors.UsageError("no pattern given").
				WithSuggestion("usage: ordgrep [flags] PATTERN [PATH...]")
		}
		patterns, paths = args[:1], args[1:]
	}
	return pattern.Spec{
		Patterns:   patterns,
		Fixed:      o.fixed,
		IgnoreCase: o.ignoreCase,
		Word:       o.word,
		LineRegexp: o.lineRegexp,
	}, paths, nil
}

// filenames reports whether line records carry their filename: when more
// than one source may be searched, unless -H or -h decides.
func (o *searchOptions) filenames(paths []string) bool {
	switch {
	case o.noFilename:
		return false
	case o.withFilename:
		return true
	default:
		return o.recursive || len(paths) > 1
	}
}

func runSearch(cmd *cobra.Command, opts *searchOptions, args []string) error {
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	spec, paths, err := opts.patternSpec(args)
	if err != nil {
		return err
	}
	mode, err := opts.mode()
	if err != nil {
		return err
	}

	wd, err := os.Getwd()
	if err != nil {
		return grerrors.InternalError("failed to get working directory", err)
	}
	cfg, err := config.Load(wd, opts.configPath)
	if err != nil {
		return err
	}
	if err := opts.applyTo(cmd.Flags(), cfg); err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	if opts.debug {
		logCfg = logging.DebugConfig()
	}
	logCfg.Stderr = stderr
	logger, cleanupLogging, err := logging.SetupDefault(logCfg)
	if err != nil {
		return grerrors.InternalError("failed to setup logging", err)
	}
	defer cleanupLogging()

	if opts.profile.Enabled() {
		prof, err := profiling.Start(opts.profile)
		if err != nil {
			return grerrors.UsageError(err.Error())
		}
		defer func() {
			if err := prof.Stop(); err != nil {
				logger.Warn("profile_write_failed", slog.String("error", err.Error()))
			}
		}()
	}

	pat, err := pattern.Compile(spec)
	if err != nil {
		return err
	}

	kind, err := backend.ParseKind(cfg.Search.Backend)
	if err != nil {
		return err
	}
	b, err := backend.New(backend.Config{
		Kind:         kind,
		PollInterval: cfg.Search.PollInterval,
		Process: backend.ProcessOptions{
			GracePeriod:      cfg.Process.GracePeriod,
			UnitTimeout:      cfg.Process.UnitTimeout,
			IdleTimeout:      cfg.Process.IdleTimeout,
			MaxSpawnFailures: cfg.Process.MaxSpawnFailures,
			Env:              []string{logging.WorkerEnvLevel + "=" + cfg.LogLevel},
		},
	})
	if err != nil {
		return err
	}

	store, err := objectStore(cfg, paths)
	if err != nil {
		return err
	}

	var progress ui.Renderer
	if opts.progress {
		progress = ui.NewRenderer(ui.NewConfig(stderr, ui.WithNoColor(cfg.Output.Color == "never")))
		if err := progress.Start(ctx); err != nil {
			return grerrors.InternalError("failed to start progress display", err)
		}
	}
	rep := newReporter(stderr, progress)

	resolver, err := source.NewResolver(source.ResolveOptions{
		Recursive:        opts.recursive,
		Exclude:          cfg.Paths.Exclude,
		RespectGitignore: cfg.Paths.RespectGitignore,
		Open: source.OpenOptions{
			Encoding:   strings.ToLower(cfg.Search.Encoding),
			Decompress: cfg.Search.Decompress,
		},
		Store:   store,
		Stdin:   cmd.InOrStdin(),
		OnError: rep.warn,
	})
	if err != nil {
		return grerrors.InternalError("failed to create resolver", err)
	}

	sess := session.New(b, pat, mode,
		session.WithMaxFiles(cfg.Search.MaxFiles),
		session.WithMaxMatches(cfg.Search.MaxMatches),
		session.WithObserver(rep.observe),
		session.WithLogger(logger),
	)

	colorMode, err := render.ParseColorMode(cfg.Output.Color)
	if err != nil {
		return grerrors.ConfigError(err.Error(), nil)
	}
	out := render.New(cmd.OutOrStdout(), render.Options{
		WithFilename: opts.filenames(paths),
		LineNumbers:  opts.lineNumbers,
		OnlyMatching: opts.onlyMatching,
		Quiet:        opts.quiet,
		Color:        colorMode,
	})

	start := time.Now()
	records, err := sess.Start(ctx, resolver.Resolve(ctx, paths))
	if err != nil {
		rep.finish(session.Stats{}, 0, kind)
		return err
	}
	// Render stops the session if it returns early.
	matched, renderErr := out.Render(records)
	joinErr := sess.Join()
	rep.finish(sess.Stats(), time.Since(start), kind)

	switch {
	// A closed pipe only means the reader has seen enough.
	case renderErr != nil && !errors.Is(renderErr, syscall.EPIPE):
		return grerrors.InternalError("failed to write output", renderErr)
	case joinErr != nil:
		return joinErr
	case !matched:
		return errNoMatch
	}
	return nil
}

// objectStore connects to S3 only when an argument needs it.
func objectStore(cfg *config.Config, paths []string) (source.ObjectStore, error) {
	needed := false
	for _, p := range paths {
		if strings.HasPrefix(p, source.S3Scheme) {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}
	store, err := source.NewMinioStore(source.S3Config{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		Secure:    cfg.S3.Secure,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
	})
	if err != nil {
		return nil, grerrors.ConfigError("invalid s3 configuration", err).
			WithSuggestion("set s3.endpoint in the config or ORDGREP_S3_ENDPOINT")
	}
	return store, nil
}

// reporter turns session events into progress updates and warnings.
// Observers run on worker goroutines.
type reporter struct {
	mu       sync.Mutex
	stderr   io.Writer
	progress ui.Renderer
	// held collects warnings while a TUI owns the terminal.
	held     []string
	searched int
	records  int
	warnings int
}

func newReporter(stderr io.Writer, progress ui.Renderer) *reporter {
	return &reporter{stderr: stderr, progress: progress}
}

func (r *reporter) observe(ev session.Event) {
	switch ev.Kind {
	case session.EventSourceStarted:
		r.update(ev.Source, 0, 0)
	case session.EventSourceFinished:
		r.update("", 1, ev.Records)
	case session.EventSourceFailed:
		r.warn(ev.Source, ev.Err)
	}
}

func (r *reporter) update(current string, searched, records int) {
	if r.progress == nil {
		return
	}
	r.mu.Lock()
	r.searched += searched
	r.records += records
	ev := ui.ProgressEvent{Searched: r.searched, Records: r.records, CurrentFile: current}
	r.mu.Unlock()
	r.progress.UpdateProgress(ev)
}

func (r *reporter) warn(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings++

	line := fmt.Sprintf("ordgrep: %s: %s\n", name, describe(err))
	switch p := r.progress.(type) {
	case nil:
		_, _ = io.WriteString(r.stderr, line)
	case *ui.TUIRenderer:
		p.AddError(ui.ErrorEvent{File: name, Err: err, IsWarn: true})
		r.held = append(r.held, line)
	default:
		p.AddError(ui.ErrorEvent{File: name, Err: err, IsWarn: true})
	}
}

// finish completes the progress display and prints held warnings.
func (r *reporter) finish(st session.Stats, elapsed time.Duration, kind backend.Kind) {
	if r.progress == nil {
		return
	}
	r.mu.Lock()
	warnings := r.warnings
	r.mu.Unlock()

	r.progress.Complete(ui.CompletionStats{
		Files:    st.Files,
		Records:  st.Records,
		Duration: elapsed,
		Warnings: warnings,
		Backend:  string(kind),
	})
	_ = r.progress.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range r.held {
		_, _ = io.WriteString(r.stderr, line)
	}
	r.held = nil
}

// describe prefers the root cause, as grep prints "No such file or directory".
func describe(err error) string {
	if err == nil {
		return "unknown error"
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	if ge, ok := grerrors.As(err); ok && ge.Cause != nil {
		return describe(ge.Cause)
	}
	return err.Error()
}
