// Package pattern compiles search patterns into matchers.
//
// A pattern is described by a Spec, a plain value that can be sent to a worker
// process and compiled again there with the same result.
package pattern

import (
	"regexp"
	"strings"

	grerrors "github.com/Aman-CERP/ordgrep/internal/errors"
)

// Spec describes a pattern independently of its compiled form.
type Spec struct {
	// Patterns are alternatives; a line matches if any of them matches.
	Patterns []string `json:"patterns"`
	// Fixed treats patterns as literal strings.
	Fixed bool `json:"fixed,omitempty"`
	// IgnoreCase matches case-insensitively.
	IgnoreCase bool `json:"ignore_case,omitempty"`
	// Word requires matches to be whole words.
	Word bool `json:"word,omitempty"`
	// LineRegexp requires the whole line to match.
	LineRegexp bool `json:"line_regexp,omitempty"`
}

// Pattern is a compiled Spec. It is safe for concurrent use.
type Pattern struct {
	spec Spec
	re   *regexp.Regexp
}

// Compile builds a Pattern. An empty pattern list is rejected; an empty
// pattern matches every line.
func Compile(spec Spec) (*Pattern, error) {
	if len(spec.Patterns) == 0 {
		return nil, grerrors.UsageError("no pattern given")
	}

	alts := make([]string, len(spec.Patterns))
	for i, p := range spec.Patterns {
		if spec.Fixed {
			p = regexp.QuoteMeta(p)
		} else if _, err := regexp.Compile(p); err != nil {
			return nil, grerrors.PatternError(p, err).
				WithSuggestion("use -F to search for a literal string")
		}
		alts[i] = "(?:" + p + ")"
	}

	expr := strings.Join(alts, "|")
	switch {
	case spec.LineRegexp:
		expr = `^(?:` + expr + `)$`
	case spec.Word:
		expr = `\b(?:` + expr + `)\b`
	}
	if spec.IgnoreCase {
		expr = "(?i)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, grerrors.PatternError(expr, err)
	}
	return &Pattern{spec: spec, re: re}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(spec Spec) *Pattern {
	p, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return p
}

// Literal compiles a single fixed string.
func Literal(s string) *Pattern {
	return MustCompile(Spec{Patterns: []string{s}, Fixed: true})
}

// Search returns the leftmost match in line.
func (p *Pattern) Search(line string) (string, bool) {
	loc := p.re.FindStringIndex(line)
	if loc == nil {
		return "", false
	}
	return line[loc[0]:loc[1]], true
}

// Spec returns the description the pattern was compiled from.
func (p *Pattern) Spec() Spec {
	return p.spec
}

// String returns the compiled expression.
func (p *Pattern) String() string {
	return p.re.String()
}
