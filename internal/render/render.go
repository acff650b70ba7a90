// Package render writes search records to a terminal or pipe in grep's
// familiar "file:line:text" layout.
package render

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/Aman-CERP/ordgrep/internal/match"
)

// ColorMode selects when output is colored.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode converts a --color value into a ColorMode.
func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ColorAuto, nil
	case ColorAuto, ColorAlways, ColorNever:
		return m, nil
	default:
		return "", fmt.Errorf("unknown color mode %q (want auto, always or never)", s)
	}
}

// Options control the output layout.
type Options struct {
	// WithFilename prefixes line records with their filename.
	WithFilename bool
	// LineNumbers prefixes line records with their 1-based line number.
	LineNumbers bool
	// OnlyMatching prints the matched substring instead of the whole line.
	OnlyMatching bool
	// Quiet prints nothing and stops at the first record.
	Quiet bool
	Color ColorMode
}

// Renderer writes records to one output.
type Renderer struct {
	out    *bufio.Writer
	opts   Options
	styles styles
}

// New creates a Renderer writing to w.
func New(w io.Writer, opts Options) *Renderer {
	return &Renderer{
		out:    bufio.NewWriter(w),
		opts:   opts,
		styles: newStyles(w, UseColor(w, opts.Color)),
	}
}

// UseColor resolves mode against w: auto colors only terminals, and only
// when NO_COLOR is unset.
func UseColor(w io.Writer, mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render writes every record and reports whether there was at least one.
// In quiet mode it returns after the first record, which ends the sequence.
func (r *Renderer) Render(records iter.Seq[match.Record]) (bool, error) {
	matched := false
	for rec := range records {
		matched = true
		if r.opts.Quiet {
			break
		}
		if err := r.write(rec); err != nil {
			return matched, err
		}
	}
	return matched, r.out.Flush()
}

func (r *Renderer) write(rec match.Record) error {
	if rec.IsFileOnly() {
		_, err := fmt.Fprintln(r.out, r.styles.filename.Render(rec.Filename))
		return err
	}

	var b strings.Builder
	if r.opts.WithFilename {
		b.WriteString(r.styles.filename.Render(rec.Filename))
		b.WriteString(r.styles.separator.Render(":"))
	}
	if r.opts.LineNumbers {
		b.WriteString(r.styles.lineNumber.Render(strconv.Itoa(rec.LineNumber)))
		b.WriteString(r.styles.separator.Render(":"))
	}

	switch {
	case r.opts.OnlyMatching:
		if !rec.HasMatched {
			// Inverted lines have no matched part.
			return nil
		}
		b.WriteString(r.styles.match.Render(rec.Matched))
	case rec.HasMatched && rec.Matched != "":
		b.WriteString(r.highlight(rec.Line, rec.Matched))
	default:
		b.WriteString(rec.Line)
	}

	b.WriteByte('\n')
	_, err := r.out.WriteString(b.String())
	return err
}

// highlight marks the leftmost occurrence of matched in line.
func (r *Renderer) highlight(line, matched string) string {
	i := strings.Index(line, matched)
	if i < 0 {
		return line
	}
	return line[:i] + r.styles.match.Render(matched) + line[i+len(matched):]
}

type styles struct {
	filename   lipgloss.Style
	lineNumber lipgloss.Style
	separator  lipgloss.Style
	match      lipgloss.Style
}

// Colors follow GNU grep's defaults.
const (
	colorFilename   = "5"
	colorLineNumber = "2"
	colorSeparator  = "6"
	colorMatch      = "1"
)

func newStyles(w io.Writer, color bool) styles {
	lr := lipgloss.NewRenderer(w)
	if color {
		lr.SetColorProfile(termenv.ANSI)
	} else {
		lr.SetColorProfile(termenv.Ascii)
	}
	// Tabs in lines and filenames are printed as they are.
	base := lr.NewStyle().TabWidth(lipgloss.NoTabConversion)
	return styles{
		filename:   base.Foreground(lipgloss.Color(colorFilename)),
		lineNumber: base.Foreground(lipgloss.Color(colorLineNumber)),
		separator:  base.Foreground(lipgloss.Color(colorSeparator)),
		match:      base.Bold(true).Foreground(lipgloss.Color(colorMatch)),
	}
}
