// Package gitignore matches paths against .gitignore rules
// (https://git-scm.com/docs/gitignore). Rules from nested .gitignore files are
// added with the directory they live in and only apply below it.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled rules. It is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	base     string
}

// New creates an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// AddPattern adds a root-level rule.
func (m *Matcher) AddPattern(line string) {
	m.AddPatternWithBase(line, "")
}

// AddPatternWithBase adds a rule that applies to paths under base.
// Blank lines and comments are ignored.
func (m *Matcher) AddPatternWithBase(line, base string) {
	r, ok := parseRule(line)
	if !ok {
		return
	}
	r.base = filepath.ToSlash(base)

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile adds every rule of a .gitignore file.
func (m *Matcher) AddFromFile(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open gitignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddPatternWithBase(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read gitignore file: %w", err)
	}
	return nil
}

// Match reports whether p, relative to the repository root, is ignored.
// The last matching rule wins, so a later negation re-includes a path.
func (m *Matcher) Match(p string, isDir bool) bool {
	p = filepath.ToSlash(p)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for i := range m.rules {
		if m.rules[i].matches(p, isDir) {
			ignored = !m.rules[i].negate
		}
	}
	return ignored
}

func parseRule(line string) (rule, bool) {
	line = trimTrailingSpace(strings.TrimLeft(line, " \t"))
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	var r rule
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	}

	if trimmed, ok := strings.CutSuffix(line, "/"); ok {
		r.dirOnly = true
		line = trimmed
	}
	if trimmed, ok := strings.CutPrefix(line, "/"); ok {
		r.anchored = true
		line = trimmed
	}
	if strings.Contains(line, "/") {
		r.anchored = true
	}
	if line == "" {
		return rule{}, false
	}

	r.re = regexp.MustCompile("^" + globToRegexp(line) + "$")
	return r, true
}

// trimTrailingSpace drops trailing spaces unless escaped with a backslash.
func trimTrailingSpace(s string) string {
	for strings.HasSuffix(s, " ") {
		if strings.HasSuffix(s, `\ `) {
			return s[:len(s)-2] + " "
		}
		s = s[:len(s)-1]
	}
	return s
}

// matches checks the path and each of its ancestors, since ignoring a
// directory ignores everything below it.
func (r *rule) matches(p string, isDir bool) bool {
	if r.base != "" {
		rest, ok := strings.CutPrefix(p, r.base+"/")
		if !ok {
			return false
		}
		p = rest
	}

	parts := strings.Split(p, "/")
	for i := range parts {
		last := i == len(parts)-1
		if r.dirOnly && last && !isDir {
			return false
		}
		var candidate string
		if r.anchored {
			candidate = path.Join(parts[:i+1]...)
		} else {
			candidate = parts[i]
		}
		if r.re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// globToRegexp translates gitignore glob syntax into a regular expression.
func globToRegexp(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if strings.HasPrefix(glob[i:], "**/") {
				b.WriteString("(?:.*/)?")
				i += 2
			} else if strings.HasPrefix(glob[i:], "**") && (i == 0 || glob[i-1] == '/') {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
